package api

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/uhyunpark/escrowd/pkg/chain"
	"github.com/uhyunpark/escrowd/pkg/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

func dialWS(t *testing.T, n *testNode) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(n.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, out interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(out); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestWebSocketSubscribe(t *testing.T) {
	n := newTestNode(t, false)
	conn := dialWS(t, n)

	if err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"bogus"}}); err != nil {
		t.Fatal(err)
	}
	var ack WSAck
	readJSON(t, conn, &ack)
	if ack.Type != "error" {
		t.Fatalf("ack = %+v, want error", ack)
	}

	if err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelSlots, ChannelReceipts}}); err != nil {
		t.Fatal(err)
	}
	readJSON(t, conn, &ack)
	if ack.Type != "subscribed" || len(ack.Channels) != 2 {
		t.Fatalf("ack = %+v", ack)
	}

	slot := chain.Slot{Height: 7, Time: time.Unix(1_700_000_000, 0)}
	slot.Hash = chain.HashOfSlot(slot)
	receipt := &ledger.Receipt{TxID: common.HexToHash("0x0b"), Slot: 7, Success: true}
	n.srv.OnSlotCommitted(slot, []*ledger.Receipt{receipt})

	var su SlotUpdate
	readJSON(t, conn, &su)
	if su.Type != "slot" || su.Height != 7 || su.Hash != slot.Hash {
		t.Errorf("slot update = %+v", su)
	}
	var ru ReceiptUpdate
	readJSON(t, conn, &ru)
	if ru.Type != "receipt" || ru.Receipt == nil || ru.Receipt.TxID != receipt.TxID {
		t.Errorf("receipt update = %+v", ru)
	}
}

func TestWebSocketOrderSellerFilter(t *testing.T) {
	n := newTestNode(t, false)
	conn := dialWS(t, n)

	wanted, other := ledger.HashPubkey("wanted seller"), ledger.HashPubkey("other seller")
	req := WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelOrders}, Seller: wanted.String()}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatal(err)
	}
	var ack WSAck
	readJSON(t, conn, &ack)
	if ack.Type != "subscribed" {
		t.Fatalf("ack = %+v", ack)
	}
	if got := n.srv.hub.Len(); got != 1 {
		t.Errorf("hub clients = %d, want 1", got)
	}

	receipt := &ledger.Receipt{
		TxID:    common.HexToHash("0x0c"),
		Slot:    3,
		Success: true,
		Events: []ledger.Event{
			{Type: escrow.EventTypeOrderCreated, Attributes: map[string]string{"seller": other.String(), "orderId": "0"}},
			{Type: escrow.EventTypeOrderCreated, Attributes: map[string]string{"seller": wanted.String(), "orderId": "1"}},
		},
	}
	n.srv.OnSlotCommitted(chain.Slot{Height: 3}, []*ledger.Receipt{receipt})

	var ou OrderUpdate
	readJSON(t, conn, &ou)
	if ou.Event != escrow.EventTypeOrderCreated || ou.Attributes["orderId"] != "1" || ou.Slot != 3 {
		t.Errorf("order update = %+v", ou)
	}
}
