// Package libp2pbus implements transport.Bus over libp2p (spec.md §6
// "Transport": "a reliable, in-order unicast to a pair (nodeAddress,
// port)"). It is the only package in this module that imports libp2p
// directly; the scheduling core only ever sees transport.Bus.
//
// Host construction follows ollama-distributed/pkg/p2p/host.NewP2PHost:
// a TCP transport secured with Noise (no TLS fallback), wrapped in a
// connection manager. NAT traversal, relay and the bandwidth/connection
// pool machinery that host.go also builds are out of scope here — this
// adapter exists to move Accept/TaskMonitor/TaskBag/Summary values between
// directly dialable nodes, not to run a public DHT-facing node.
package libp2pbus

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/transport"
)

// starsProtocol is this module's stream protocol, named after the
// teacher's own protocols.SchedulerProtocol constant
// ("/ollama-distributed/scheduler/1.0.0").
const starsProtocol = protocol.ID("/stars/scheduling/1.0.0")

// maxMessageSize bounds a single framed message, mirroring
// protocols.MaxMessageSize.
const maxMessageSize = 4 << 20

const streamDeadline = 10 * time.Second

// Bus is a transport.Bus backed by a libp2p host. Inbound messages are
// decoded on the libp2p connection's own goroutine and handed to the
// scheduling core via loop.Post, so the core's single-threaded invariant
// (spec.md §6) holds regardless of how many streams are open concurrently.
type Bus struct {
	log    zerolog.Logger
	loop   *eventloop.Loop
	host   host.Host
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	peers map[address.Address]peer.AddrInfo
	onMsg transport.OnMessageFunc
}

var _ transport.Bus = (*Bus)(nil)

// New constructs and starts a libp2p host for self, dialing no one yet:
// peers are resolved lazily out of cfg.Network.Peers on first SendMessage.
func New(ctx context.Context, self address.Address, cfg *config.Config, loop *eventloop.Loop, log zerolog.Logger) (*Bus, error) {
	priv, err := identityKey(cfg.Network.PrivateKeySeed)
	if err != nil {
		return nil, fmt.Errorf("libp2pbus: deriving identity: %w", err)
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.Network.Listen))
	for _, s := range cfg.Network.Listen {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("libp2pbus: parsing listen addr %q: %w", s, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	cm, err := connmgr.NewConnManager(64, 256, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("libp2pbus: building connection manager: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.ConnectionManager(cm),
	)
	if err != nil {
		return nil, fmt.Errorf("libp2pbus: building host: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b := &Bus{
		log:    log.With().Str("component", "libp2pbus").Uint64("node", self.Uint64()).Logger(),
		loop:   loop,
		host:   h,
		ctx:    runCtx,
		cancel: cancel,
		peers:  make(map[address.Address]peer.AddrInfo),
	}
	for id, addr := range cfg.Network.Peers {
		info, err := parsePeer(addr)
		if err != nil {
			return nil, fmt.Errorf("libp2pbus: parsing peer %d address %q: %w", id, addr, err)
		}
		b.peers[address.New(id)] = info
	}

	h.SetStreamHandler(starsProtocol, b.handleStream)
	return b, nil
}

func identityKey(seed string) (crypto.PrivKey, error) {
	if seed == "" {
		priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
		return priv, err
	}
	priv, _, err := crypto.GenerateEd25519Key(newSeededReader(seed))
	return priv, err
}

func parsePeer(addr string) (peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	return *info, nil
}

// Host exposes the underlying libp2p host, mainly so node wiring can log
// its listen addresses and peer.ID at startup.
func (b *Bus) Host() host.Host { return b.host }

// Close cancels the host's run context and shuts it down.
func (b *Bus) Close() error {
	b.cancel()
	return b.host.Close()
}

// OnMessage registers the single inbound handler for this node.
func (b *Bus) OnMessage(fn transport.OnMessageFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onMsg = fn
}

// SendMessage implements transport.Bus: it opens a fresh stream to dst for
// every call, writes one length-prefixed envelope, and reports the
// envelope's accounted wire size for the Aggregating Dispatcher's
// bandwidth cap (spec.md §4.3).
func (b *Bus) SendMessage(dst address.Address, msg transport.Message) (int, error) {
	b.mu.RLock()
	info, ok := b.peers[dst]
	b.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("libp2pbus: no known address for peer %s", dst)
	}

	data, err := encode(msg)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(b.ctx, streamDeadline)
	defer cancel()
	b.host.Peerstore().AddAddrs(info.ID, info.Addrs, time.Hour)

	stream, err := b.host.NewStream(ctx, info.ID, starsProtocol)
	if err != nil {
		return 0, fmt.Errorf("libp2pbus: opening stream to %s: %w", dst, err)
	}
	defer stream.Close()

	if err := writeFramed(stream, data); err != nil {
		return 0, fmt.Errorf("libp2pbus: writing to %s: %w", dst, err)
	}
	return len(data) + 4, nil
}

// handleStream is the libp2p SetStreamHandler callback: it runs on a
// connection goroutine the scheduling core never sees, so every decoded
// message is handed off through loop.Post before the handler returns.
func (b *Bus) handleStream(stream network.Stream) {
	defer stream.Close()

	remote := stream.Conn().RemotePeer()
	data, err := readFramed(stream)
	if err != nil {
		b.log.Warn().Err(err).Str("peer", remote.String()).Msg("libp2pbus: reading stream")
		return
	}

	msg, err := decode(data)
	if err != nil {
		b.log.Warn().Err(err).Str("peer", remote.String()).Msg("libp2pbus: decoding message")
		return
	}

	src := b.addressOf(remote)

	b.mu.RLock()
	onMsg := b.onMsg
	b.mu.RUnlock()
	if onMsg == nil {
		return
	}
	b.loop.Post(func(time.Time) { onMsg(src, msg) })
}

// addressOf looks up the STaRS address.Address of a connecting peer.ID
// against the static peer table; an unrecognised peer is reported as
// address.Null, which every handler treats as "unknown neighbour".
func (b *Bus) addressOf(p peer.ID) address.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for addr, info := range b.peers {
		if info.ID == p {
			return addr
		}
	}
	return address.Null
}

// writeFramed/readFramed use the same 4-byte big-endian length prefix plus
// JSON body framing as ollama-distributed/pkg/p2p/protocols.ProtocolHandler
// SendMessage/readMessage.
func writeFramed(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("message size %d exceeds maximum %d", len(data), maxMessageSize)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFramed(r io.Reader) ([]byte, error) {
	reader := bufio.NewReader(r)
	var header [4]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxMessageSize {
		return nil, fmt.Errorf("invalid message size: %d", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return data, nil
}
