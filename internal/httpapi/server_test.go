package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/kirana/internal/assistant"
	"github.com/antoniostano/kirana/internal/cart"
	"github.com/antoniostano/kirana/internal/catalog"
	"github.com/antoniostano/kirana/internal/chat"
	"github.com/antoniostano/kirana/internal/completion"
	"github.com/antoniostano/kirana/internal/config"
	"github.com/antoniostano/kirana/internal/conversation"
	"github.com/antoniostano/kirana/internal/observability"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/policy"
	"github.com/antoniostano/kirana/internal/protocol"
	"github.com/antoniostano/kirana/internal/session"
)

var metricsSeq atomic.Int64

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{SessionInactivityTimeout: 2 * time.Minute}
	ordering := policy.DefaultOrdering()

	cat := catalog.Default()
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	orders := order.NewInMemoryStore()
	carts := cart.NewManager(cart.NewInMemoryStore(), cat, orders, ordering)
	metrics := observability.NewMetrics(fmt.Sprintf("kirana_test_httpapi_%d", metricsSeq.Add(1)))
	interp := assistant.New(completion.NewRulesClient(ordering), assistant.Options{Ordering: ordering, Timeout: 5 * time.Second})
	svc := chat.NewService(sessions, conversation.NewInMemoryStore(), interp, carts, cat, chat.Options{Metrics: metrics})

	srv := New(cfg, Deps{
		Sessions: sessions,
		Chat:     svc,
		Carts:    carts,
		Catalog:  cat,
		Orders:   orders,
		Metrics:  metrics,
		Backend:  "rules",
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body == nil {
		rd = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer res.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func createSession(t *testing.T, baseURL string, req map[string]string) string {
	t.Helper()
	res, body := doJSON(t, http.MethodPost, baseURL+"/v1/sessions", req, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatalf("missing session_id in create response: %+v", body)
	}
	if body["greeting"] != chat.Greeting {
		t.Fatalf("greeting = %v, want %q", body["greeting"], chat.Greeting)
	}
	return id
}

func TestCreateAndEndSession(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts.URL, map[string]string{"user_id": "user-1"})

	res, body := doJSON(t, http.MethodGet, ts.URL+"/v1/sessions/"+id, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	history, _ := body["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1 (greeting)", len(history))
	}

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/end", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/messages", map[string]string{"text": "2kg salt"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("message after end status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
	if body["code"] != "session_ended" {
		t.Fatalf("code = %v, want session_ended", body["code"])
	}
}

func TestCreateSessionRejectsUnknownRole(t *testing.T) {
	ts := newTestServer(t)
	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"role": "admin"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if body["code"] != "invalid_role" {
		t.Fatalf("code = %v, want invalid_role", body["code"])
	}
}

func TestSendMessageUpdatesCartAndCheckout(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts.URL, map[string]string{
		"user_id":          "user-2",
		"customer_name":    "Priya",
		"customer_address": "B-402, Green Valleys",
	})

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/messages", map[string]string{"text": "I need 2kg salt"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("message status = %d, want %d (%v)", res.StatusCode, http.StatusOK, body)
	}
	if body["degraded"] != false {
		t.Fatalf("degraded = %v, want false", body["degraded"])
	}

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/sessions/"+id+"/cart", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cart status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if body["count"] != float64(2) {
		t.Fatalf("cart count = %v, want 2", body["count"])
	}
	if body["total"] != float64(56) {
		t.Fatalf("cart total = %v, want 56", body["total"])
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/checkout", map[string]string{"delivery_mode": "Instant"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("checkout status = %d, want %d (%v)", res.StatusCode, http.StatusCreated, body)
	}
	if body["total"] != float64(56+order.InstantFee) {
		t.Fatalf("order total = %v, want %v", body["total"], 56+order.InstantFee)
	}
	if body["customer_name"] != "Priya" {
		t.Fatalf("customer_name = %v, want Priya", body["customer_name"])
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/checkout", nil, nil)
	if res.StatusCode != http.StatusConflict || body["code"] != "empty_cart" {
		t.Fatalf("second checkout = %d %v, want 409 empty_cart", res.StatusCode, body["code"])
	}
}

func TestSendMessageValidation(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts.URL, map[string]string{"user_id": "user-3"})

	res, body := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/messages", map[string]string{"text": "   "}, nil)
	if res.StatusCode != http.StatusBadRequest || body["code"] != "empty_message" {
		t.Fatalf("empty message = %d %v, want 400 empty_message", res.StatusCode, body["code"])
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/missing/messages", map[string]string{"text": "salt"}, nil)
	if res.StatusCode != http.StatusNotFound || body["code"] != "session_not_found" {
		t.Fatalf("missing session = %d %v, want 404 session_not_found", res.StatusCode, body["code"])
	}
}

func TestAdjustCartItems(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts.URL, map[string]string{"user_id": "user-4"})
	url := ts.URL + "/v1/sessions/" + id + "/cart/items"

	res, body := doJSON(t, http.MethodPost, url, map[string]any{"item_id": "9"}, nil)
	if res.StatusCode != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("add = %d count %v, want 200 count 1", res.StatusCode, body["count"])
	}

	res, body = doJSON(t, http.MethodPost, url, map[string]any{"item_id": "nope"}, nil)
	if res.StatusCode != http.StatusNotFound || body["code"] != "unknown_item" {
		t.Fatalf("unknown item = %d %v, want 404 unknown_item", res.StatusCode, body["code"])
	}

	res, body = doJSON(t, http.MethodPost, url, map[string]any{"item_id": "9", "delta": -1}, nil)
	if res.StatusCode != http.StatusOK || body["count"] != float64(0) {
		t.Fatalf("remove = %d count %v, want 200 count 0", res.StatusCode, body["count"])
	}
}

func TestCatalogRoutes(t *testing.T) {
	ts := newTestServer(t)

	res, body := doJSON(t, http.MethodGet, ts.URL+"/v1/catalog?category=Beauty", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("catalog status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	items, _ := body["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("beauty items = %d, want 2", len(items))
	}

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/store", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("store status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if body["name"] != "Ganesh Kirana & General Store" {
		t.Fatalf("store name = %v", body["name"])
	}
}

func TestOrderStatusRequiresStoreOwner(t *testing.T) {
	ts := newTestServer(t)
	customer := createSession(t, ts.URL, map[string]string{"user_id": "user-5"})
	owner := createSession(t, ts.URL, map[string]string{"user_id": "owner-1", "role": "store_owner"})

	doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+customer+"/cart/items", map[string]any{"item_id": "2"}, nil)
	res, placed := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+customer+"/checkout", nil, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("checkout status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	orderID, _ := placed["id"].(string)
	if !strings.HasPrefix(orderID, "ORD-") {
		t.Fatalf("order id = %q, want ORD- prefix", orderID)
	}
	statusURL := ts.URL + "/v1/orders/" + orderID + "/status"

	res, _ = doJSON(t, http.MethodPatch, statusURL, map[string]string{"status": "Out for Delivery"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no session status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
	res, _ = doJSON(t, http.MethodPatch, statusURL, map[string]string{"status": "Out for Delivery"}, map[string]string{SessionHeader: customer})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("customer status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}

	res, body := doJSON(t, http.MethodPatch, statusURL, map[string]string{"status": "out_for_delivery"}, map[string]string{SessionHeader: owner})
	if res.StatusCode != http.StatusOK || body["status"] != "Out for Delivery" {
		t.Fatalf("owner update = %d %v, want 200 Out for Delivery", res.StatusCode, body["status"])
	}

	res, body = doJSON(t, http.MethodPatch, statusURL, map[string]string{"status": "Pending"}, map[string]string{SessionHeader: owner})
	if res.StatusCode != http.StatusConflict || body["code"] != "invalid_transition" {
		t.Fatalf("backwards update = %d %v, want 409 invalid_transition", res.StatusCode, body["code"])
	}

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/orders", nil, map[string]string{SessionHeader: customer})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if list, _ := body["orders"].([]any); len(list) != 1 {
		t.Fatalf("customer orders = %d, want 1", len(list))
	}

	other := createSession(t, ts.URL, map[string]string{"user_id": "user-6"})
	res, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/orders/"+orderID, nil, map[string]string{SessionHeader: other})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign order status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestReadyAndPerf(t *testing.T) {
	ts := newTestServer(t)

	res, body := doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	if res.StatusCode != http.StatusOK || body["completion_backend"] != "rules" {
		t.Fatalf("readyz = %d %v", res.StatusCode, body)
	}

	id := createSession(t, ts.URL, map[string]string{"user_id": "user-7"})
	doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/"+id+"/messages", map[string]string{"text": "2kg salt"}, nil)

	res, body = doJSON(t, http.MethodGet, ts.URL+"/v1/perf/turns", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("perf status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if _, ok := body["stages"]; !ok {
		t.Fatalf("perf response missing stages: %v", body)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev map[string]any
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read ws event: %v", err)
	}
	return ev
}

func TestChatWebSocket(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts.URL, map[string]string{"user_id": "user-8"})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws?session_id=" + id
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	send := func(v any) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("write ws: %v", err)
		}
	}

	send(protocol.UserMessage{Type: protocol.TypeUserMessage, SessionID: id, Text: "2kg salt", ClientMsgID: "c-1"})
	reply := readEvent(t, conn)
	if reply["type"] != string(protocol.TypeAssistantReply) || reply["client_msg_id"] != "c-1" {
		t.Fatalf("first event = %v, want assistant_reply for c-1", reply)
	}
	snap := readEvent(t, conn)
	if snap["type"] != string(protocol.TypeCartSnapshot) || snap["count"] != float64(2) {
		t.Fatalf("second event = %v, want cart_snapshot with count 2", snap)
	}

	send(protocol.UserMessage{Type: protocol.TypeUserMessage, SessionID: id, Text: "that's all, let's pay"})
	readEvent(t, conn)
	readEvent(t, conn)
	if ev := readEvent(t, conn); ev["type"] != string(protocol.TypeCheckoutRequested) {
		t.Fatalf("third event = %v, want checkout_requested", ev)
	}

	send(protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: id, Action: protocol.ActionCheckout, DeliveryMode: "Batch"})
	placed := readEvent(t, conn)
	if placed["type"] != string(protocol.TypeOrderPlaced) || placed["estimated_delivery"] != "Batch @ 4:00 PM" {
		t.Fatalf("order event = %v, want order_placed for batch", placed)
	}
	if ev := readEvent(t, conn); ev["count"] != float64(0) {
		t.Fatalf("post-checkout snapshot = %v, want empty cart", ev)
	}

	send(protocol.UserMessage{Type: protocol.TypeUserMessage, SessionID: "someone-else", Text: "salt"})
	if ev := readEvent(t, conn); ev["type"] != string(protocol.TypeErrorEvent) || ev["code"] != "invalid_client_message" {
		t.Fatalf("mismatched session event = %v, want invalid_client_message", ev)
	}
}

func TestChatWebSocketRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	res, body := doJSON(t, http.MethodGet, ts.URL+"/v1/chat/ws", nil, nil)
	if res.StatusCode != http.StatusBadRequest || body["code"] != "missing_session_id" {
		t.Fatalf("ws without session = %d %v", res.StatusCode, body["code"])
	}
}
