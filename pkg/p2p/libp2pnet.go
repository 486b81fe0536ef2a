package p2p

import (
	"context"
	"errors"
	"fmt"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/mempool"
	"github.com/uhyunpark/escrowd/pkg/metrics"
)

const DefaultTopic = "escrowd/tx/1"

// Pool is the subset of the mempool that gossip feeds
type Pool interface {
	PushRaw(b []byte) (*ledger.Transaction, error)
}

// Libp2pNet relays pending transactions between nodes over a gossipsub topic
type Libp2pNet struct {
	h   host.Host
	ps  *pubsub.PubSub
	log *zap.SugaredLogger

	pool  Pool
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

type Libp2pConfig struct {
	ListenAddr string
	Bootstrap  []string
	Topic      string
	Pool       Pool
	Logger     *zap.SugaredLogger
}

func NewLibp2pNet(ctx context.Context, cfg Libp2pConfig) (*Libp2pNet, error) {
	if cfg.Pool == nil {
		return nil, errors.New("p2p: pool is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	var opts []libp2p.Option
	if cfg.ListenAddr != "" {
		maddr, err := ma.NewMultiaddr(cfg.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid listen addr %q: %w", cfg.ListenAddr, err)
		}
		opts = append(opts, libp2p.ListenAddrs(maddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, err
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		return nil, err
	}

	net := &Libp2pNet{h: h, ps: ps, log: cfg.Logger, pool: cfg.Pool}

	for _, bs := range cfg.Bootstrap {
		if err := connectMultiaddr(ctx, h, bs); err != nil {
			cfg.Logger.Warnw("bootstrap_connect_failed", "addr", bs, "err", err)
		}
	}

	if net.topic, err = ps.Join(cfg.Topic); err != nil {
		h.Close()
		return nil, err
	}
	if net.sub, err = net.topic.Subscribe(); err != nil {
		h.Close()
		return nil, err
	}

	go net.handleTxs(ctx)

	cfg.Logger.Infow("libp2p_ready", "peer", h.ID().String(), "listen", cfg.ListenAddr, "topic", cfg.Topic)
	return net, nil
}

func connectMultiaddr(ctx context.Context, h host.Host, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return h.Connect(ctx, *info)
}

func (n *Libp2pNet) Host() host.Host { return n.h }

// Addrs returns the dialable multiaddrs of this node, including its peer ID
func (n *Libp2pNet) Addrs() []string {
	self := "/p2p/" + n.h.ID().String()
	out := make([]string, 0, len(n.h.Addrs()))
	for _, a := range n.h.Addrs() {
		out = append(out, a.String()+self)
	}
	return out
}

// BroadcastTx publishes a transaction the local node has accepted
func (n *Libp2pNet) BroadcastTx(ctx context.Context, tx *ledger.Transaction) error {
	w, err := NewTxWire(tx, n.h.ID().String())
	if err != nil {
		return err
	}
	data, err := w.Marshal()
	if err != nil {
		return err
	}
	if err := n.topic.Publish(ctx, data); err != nil {
		return err
	}
	metrics.Node().ObserveGossip("out")
	return nil
}

func (n *Libp2pNet) Close() error {
	n.sub.Cancel()
	if err := n.topic.Close(); err != nil {
		n.log.Warnw("topic_close_failed", "err", err)
	}
	return n.h.Close()
}

// inbound

func (n *Libp2pNet) handleTxs(ctx context.Context) {
	for {
		msg, err := n.sub.Next(ctx)
		if err != nil {
			return
		}
		// Own publications were pushed locally before broadcast
		if msg.ReceivedFrom == n.h.ID() {
			continue
		}
		w, err := UnmarshalTxWire(msg.Data)
		if err != nil {
			metrics.Node().ObserveGossip("invalid")
			n.log.Debugw("gossip_decode_failed", "from", msg.ReceivedFrom.String(), "err", err)
			continue
		}
		metrics.Node().ObserveGossip("in")
		tx, err := n.pool.PushRaw(w.Tx)
		if err != nil {
			if !errors.Is(err, mempool.ErrDuplicate) {
				n.log.Debugw("gossip_tx_rejected", "from", msg.ReceivedFrom.String(), "err", err)
			}
			continue
		}
		n.log.Debugw("gossip_tx_accepted", "tx", tx.ID().Hex(), "origin", w.Origin)
	}
}
