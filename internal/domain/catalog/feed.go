package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// RecordError reports an unusable feed record.
type RecordError struct {
	Index  int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %s", e.Index, e.Reason)
}

// wrapperKeys name the array fields that hold records in wrapped feeds, as in
// {"meals": [...]}.
var wrapperKeys = map[string]bool{
	"meals": true,
	"data":  true,
	"foods": true,
	"items": true,
}

// DecodeFeed reads every meal from r. See StreamFeed for accepted layouts.
func DecodeFeed(r io.Reader) ([]Meal, error) {
	var meals []Meal
	if err := StreamFeed(r, func(m Meal) error {
		meals = append(meals, m)
		return nil
	}); err != nil {
		return nil, err
	}
	return meals, nil
}

// DecodeRecord decodes a single feed record.
func DecodeRecord(data []byte) (Meal, error) {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return Meal{}, &RecordError{Reason: "expected object"}
	}
	rd := recordDecoder{}
	if err := d.Obj(rd.field); err != nil {
		return Meal{}, &RecordError{Reason: "malformed: " + err.Error()}
	}
	return rd.finish(0)
}

// StreamFeed calls fn for each meal in r. The stream holds one or more JSON
// values, each being an array of records, an object wrapping such an array
// under "meals", "data", "foods" or "items", or a single record. Records
// accept the campus API layout ({id, name, price, image}) and TheMealDB layout
// ({idMeal, strMeal, strMealThumb}).
func StreamFeed(r io.Reader, fn func(Meal) error) error {
	fs := &feedStream{d: jx.Decode(r, 64*1024), fn: fn}
	for {
		switch tt := fs.d.Next(); tt {
		case jx.Invalid:
			// Next reports Invalid at end of input as well as on garbage.
			if err := fs.d.Skip(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return errors.Wrap(err, "decode feed")
			}
			return nil
		case jx.Array:
			if err := fs.d.Arr(fs.record); err != nil {
				return err
			}
		case jx.Object:
			if err := fs.object(); err != nil {
				return err
			}
		default:
			return errors.Errorf("decode feed: unexpected %s", tt)
		}
	}
}

type feedStream struct {
	d     *jx.Decoder
	fn    func(Meal) error
	index int
}

// record decodes one record object and hands it to fn.
func (fs *feedStream) record(d *jx.Decoder) error {
	if d.Next() != jx.Object {
		fs.index++
		return &RecordError{Index: fs.index - 1, Reason: "expected object"}
	}
	rd := recordDecoder{}
	if err := d.Obj(rd.field); err != nil {
		return errors.Wrapf(err, "decode record %d", fs.index)
	}
	return fs.emit(rd)
}

// object decodes a top-level object that is either a wrapper or a record.
func (fs *feedStream) object() error {
	rd := recordDecoder{}
	wrapped := false
	if err := fs.d.Obj(func(d *jx.Decoder, key string) error {
		if wrapperKeys[key] && d.Next() == jx.Array {
			wrapped = true
			return d.Arr(fs.record)
		}
		return rd.field(d, key)
	}); err != nil {
		return err
	}
	if wrapped && !rd.hasID {
		return nil
	}
	return fs.emit(rd)
}

func (fs *feedStream) emit(rd recordDecoder) error {
	m, err := rd.finish(fs.index)
	fs.index++
	if err != nil {
		return err
	}
	return fs.fn(m)
}

type recordDecoder struct {
	meal         Meal
	hasID        bool
	hasPrice     bool
	hasAvailable bool
}

func (rd *recordDecoder) field(d *jx.Decoder, key string) error {
	m := &rd.meal
	switch key {
	case "id", "idMeal", "_id":
		id, err := decodeID(d)
		if err != nil {
			return errors.Wrap(err, key)
		}
		m.ID, rd.hasID = id, id != ""
	case "name", "strMeal", "title":
		return decodeString(d, key, &m.DisplayName)
	case "image", "imageUrl", "strMealThumb", "thumbnail":
		return decodeString(d, key, &m.ImageURL)
	case "category", "strCategory":
		return decodeString(d, key, &m.Category)
	case "restaurant", "restaurantName":
		if d.Next() != jx.String {
			return rd.keep(d, key)
		}
		return decodeString(d, key, &m.Restaurant)
	case "price":
		if d.Next() == jx.Null {
			return d.Null()
		}
		p, err := decodePrice(d)
		if err != nil {
			return errors.Wrap(err, "price")
		}
		m.Price, rd.hasPrice = p, true
	case "available":
		if d.Next() == jx.Null {
			return d.Null()
		}
		v, err := d.Bool()
		if err != nil {
			return errors.Wrap(err, "available")
		}
		m.Available, rd.hasAvailable = v, true
	default:
		return rd.keep(d, key)
	}
	return nil
}

// keep stores the raw value of key in Attributes.
func (rd *recordDecoder) keep(d *jx.Decoder, key string) error {
	raw, err := d.Raw()
	if err != nil {
		return errors.Wrap(err, key)
	}
	if rd.meal.Attributes == nil {
		rd.meal.Attributes = make(map[string]json.RawMessage)
	}
	rd.meal.Attributes[key] = bytes.Clone(raw)
	return nil
}

func (rd *recordDecoder) finish(index int) (Meal, error) {
	m := rd.meal
	if !rd.hasID {
		return Meal{}, &RecordError{Index: index, Reason: "missing id"}
	}
	if m.DisplayName == "" {
		return Meal{}, &RecordError{Index: index, Reason: "missing name"}
	}
	if !rd.hasPrice {
		m.Price = DefaultPrice
	}
	if m.Price.IsNegative() {
		return Meal{}, &RecordError{Index: index, Reason: "negative price"}
	}
	if m.Price.GreaterThan(MaxPrice) {
		return Meal{}, &RecordError{Index: index, Reason: "price out of range"}
	}
	if !rd.hasAvailable {
		m.Available = true
	}
	return m, nil
}

// decodeID accepts numeric and string ids.
func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.New("expected string or number")
	}
}

func decodePrice(d *jx.Decoder) (decimal.Decimal, error) {
	var s string
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		s = v
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		s = n.String()
	default:
		return decimal.Decimal{}, errors.New("expected number")
	}
	return decimal.NewFromString(s)
}

func decodeString(d *jx.Decoder, key string, dst *string) error {
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return errors.Wrap(err, key)
		}
		*dst = v
		return nil
	default:
		return errors.Errorf("%s: expected string", key)
	}
}
