//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestPlaceOrder_RequiresLogin(t *testing.T) {
	device := newDevice()
	expectStatus[cartResponse](t,
		doRequest(t, http.MethodPost, "/api/cart/items", device, addItemRequest{MealID: "1", Quantity: 1}),
		http.StatusOK)

	resp := doRequest(t, http.MethodPost, "/api/orders", device, map[string]string{"orderType": "individual"})
	expectStatus[errorResponse](t, resp, http.StatusUnauthorized)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	device := newDevice()
	expectStatus[sessionResponse](t,
		doRequest(t, http.MethodPost, "/api/session/login", device, credentials{Email: device + "@mak.ac.ug", Password: "x"}),
		http.StatusOK)

	resp := doRequest(t, http.MethodPost, "/api/orders", device, map[string]string{"orderType": "individual"})
	expectStatus[errorResponse](t, resp, http.StatusBadRequest)
}

func TestPlaceOrder_Persisted(t *testing.T) {
	device := newDevice()
	expectStatus[sessionResponse](t,
		doRequest(t, http.MethodPost, "/api/session/login", device, credentials{Email: device + "@mak.ac.ug", Password: "x"}),
		http.StatusOK)
	expectStatus[cartResponse](t,
		doRequest(t, http.MethodPost, "/api/cart/items", device, addItemRequest{MealID: "2", Quantity: 2}),
		http.StatusOK)

	o := expectStatus[orderResponse](t,
		doRequest(t, http.MethodPost, "/api/orders", device, map[string]string{"orderType": "individual"}),
		http.StatusCreated)

	if !uuidPattern.MatchString(o.ID) {
		t.Errorf("order id %q is not a UUID", o.ID)
	}
	if o.Total != 30000 || o.DeliveryFee != 5000 || o.FinalTotal != 35000 {
		t.Errorf("pricing: got %+v", o)
	}

	c := expectStatus[cartResponse](t, doRequest(t, http.MethodGet, "/api/cart", device, nil), http.StatusOK)
	if c.Count != 0 {
		t.Errorf("cart not cleared after checkout: %+v", c)
	}

	orders := expectStatus[[]orderResponse](t, doRequest(t, http.MethodGet, "/api/orders", device, nil), http.StatusOK)
	if len(orders) != 1 || orders[0].ID != o.ID {
		t.Errorf("order history: got %+v", orders)
	}
}

func TestOrderStatus_Lifecycle(t *testing.T) {
	device := newDevice()
	expectStatus[sessionResponse](t,
		doRequest(t, http.MethodPost, "/api/session/login", device, credentials{Email: device + "@mak.ac.ug", Password: "x"}),
		http.StatusOK)
	expectStatus[cartResponse](t,
		doRequest(t, http.MethodPost, "/api/cart/items", device, addItemRequest{MealID: "1", Quantity: 1}),
		http.StatusOK)
	o := expectStatus[orderResponse](t,
		doRequest(t, http.MethodPost, "/api/orders", device, nil),
		http.StatusCreated)

	path := "/api/orders/" + o.ID
	got := expectStatus[orderResponse](t, doRequest(t, http.MethodGet, path, device, nil), http.StatusOK)
	if got.Status != "pending" {
		t.Errorf("new order status: got %q", got.Status)
	}

	expectStatus[errorResponse](t,
		doRequest(t, http.MethodPut, path+"/status", device, map[string]string{"status": "delivered"}),
		http.StatusConflict)

	for _, st := range []string{"confirmed", "delivered"} {
		got = expectStatus[orderResponse](t,
			doRequest(t, http.MethodPut, path+"/status", device, map[string]string{"status": st}),
			http.StatusOK)
		if got.Status != st {
			t.Errorf("advance to %s: got %q", st, got.Status)
		}
	}

	got = expectStatus[orderResponse](t, doRequest(t, http.MethodGet, path, device, nil), http.StatusOK)
	if got.Status != "delivered" {
		t.Errorf("stored status: got %q", got.Status)
	}

	other := newDevice()
	expectStatus[sessionResponse](t,
		doRequest(t, http.MethodPost, "/api/session/login", other, credentials{Email: other + "@mak.ac.ug", Password: "x"}),
		http.StatusOK)
	expectStatus[errorResponse](t, doRequest(t, http.MethodGet, path, other, nil), http.StatusNotFound)
}

func TestAddItem_QuantityLimit(t *testing.T) {
	device := newDevice()
	expectStatus[errorResponse](t,
		doRequest(t, http.MethodPost, "/api/cart/items", device, addItemRequest{MealID: "1", Quantity: 100_001}),
		http.StatusBadRequest)
}
