package exchange

// stream.go: WebSocket fill stream. One goroutine owns the connection:
// it reconnects with exponential backoff and forwards fill messages to
// the gateway's event channel. The exchange replays unacknowledged
// fills on reconnect, so downstream consumers see at-least-once
// delivery.

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/gridbot/internal/ports"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsBaseBackoff  = 1 * time.Second
	wsMaxBackoff   = 60 * time.Second
	fillChanBuffer = 256
)

type fillStream struct {
	url    string
	symbol string
	out    chan ports.FillEvent

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newFillStream(url, symbol string) *fillStream {
	return &fillStream{
		url:    url,
		symbol: symbol,
		out:    make(chan ports.FillEvent, fillChanBuffer),
	}
}

// start launches the connection loop.
func (s *fillStream) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// stop terminates the stream and closes the event channel.
func (s *fillStream) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	close(s.out)
}

func (s *fillStream) run(ctx context.Context) {
	defer s.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			delay := streamBackoff(retry)
			retry++
			slog.Warn("fill stream connect failed", "err", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		slog.Info("fill stream connected", "symbol", s.symbol)
		s.consume(ctx, conn)
		conn.Close()
	}
}

// consume reads messages until the connection drops or ctx is done.
func (s *fillStream) consume(ctx context.Context, conn *websocket.Conn) {
	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				slog.Warn("fill stream read error", "err", err)
				return
			}
			s.handleMessage(msg)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-done:
			return
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Warn("fill stream ping failed", "err", err)
				return
			}
		}
	}
}

func (s *fillStream) handleMessage(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Type != "fill" {
		return
	}

	var f wsFill
	if err := json.Unmarshal(msg, &f); err != nil {
		slog.Warn("malformed fill message", "err", err)
		return
	}
	if f.Symbol != "" && f.Symbol != s.symbol {
		return
	}

	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		slog.Warn("unparseable fill price", "price", f.Price, "order_id", f.OrderID)
		return
	}
	qty, err := decimal.NewFromString(f.Quantity)
	if err != nil {
		slog.Warn("unparseable fill quantity", "quantity", f.Quantity, "order_id", f.OrderID)
		return
	}

	ev := ports.FillEvent{
		OrderID:  f.OrderID,
		Price:    price,
		Quantity: qty,
		EventID:  f.EventID,
	}

	select {
	case s.out <- ev:
	default:
		// Buffer full: drop the oldest pending event to keep the newest.
		// The consumer's duplicate check makes redelivered fills safe,
		// but a silently wedged stream would not be.
		select {
		case <-s.out:
		default:
		}
		s.out <- ev
		slog.Warn("fill buffer overflow, oldest event dropped")
	}
}

func streamBackoff(retry int) time.Duration {
	if retry > 6 {
		return wsMaxBackoff
	}
	d := wsBaseBackoff * time.Duration(1<<retry)
	if d > wsMaxBackoff {
		return wsMaxBackoff
	}
	return d
}
