package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"ocppgate/pkg/bus"
	"ocppgate/pkg/channel"
	"ocppgate/pkg/config"
)

const channelName = "console"
const messagePreviewLimit = 240

// Adapter speaks OCPP-J over a line stream. Each input line is
// "<chargeBoxID> <frame>"; replies and queued calls are written the same way.
type Adapter struct {
	cfg       config.ConsoleConfig
	allowFrom map[string]struct{}
	in        io.Reader
	out       io.Writer
	outbound  *bus.MessageBus
	log       *slog.Logger

	writeMu sync.Mutex
}

// NewAdapter wires a console channel to in and out. Outbound calls are
// drained from mb when it is not nil.
func NewAdapter(cfg config.ConsoleConfig, in io.Reader, out io.Writer, mb *bus.MessageBus, log *slog.Logger) (*Adapter, error) {
	if in == nil || out == nil {
		return nil, errors.New("console channel needs an input and an output")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		in:        in,
		out:       out,
		outbound:  mb,
		log:       log.With("component", "channel.console"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run reads frames until the input ends or ctx is canceled.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.outbound != nil {
		go a.drain(runCtx)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(a.in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	a.log.Info("Console channel started", "sub_protocol", a.cfg.SubProtocol)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read console input: %w", err)
			}
			a.log.Info("Console input closed")
			<-ctx.Done()
			return nil
		case line := <-lines:
			chargeBoxID, frame, ok := parseLine(line)
			if !ok {
				if strings.TrimSpace(line) != "" {
					a.log.Warn("Ignoring line without charge box id", "content", previewText(line))
				}
				continue
			}
			if !a.chargeBoxAllowed(chargeBoxID) {
				a.log.Debug("Ignoring frame from unknown charge box", "charge_box_id", chargeBoxID)
				continue
			}

			inbound := channel.InboundMessage{
				Channel:     channelName,
				ChargeBoxID: chargeBoxID,
				SubProtocol: a.cfg.SubProtocol,
				Content:     frame,
			}
			a.log.Debug("Received frame", "charge_box_id", chargeBoxID, "content", previewText(frame))

			reply, err := handler(ctx, inbound)
			if err != nil {
				a.log.Error("Failed to process inbound frame", "charge_box_id", chargeBoxID, "error", err)
				continue
			}
			if reply == "" {
				continue
			}
			if err := a.write(chargeBoxID, reply); err != nil {
				return err
			}
		}
	}
}

// drain writes queued calls for any charge box until ctx ends.
func (a *Adapter) drain(ctx context.Context) {
	for {
		msg, ok := a.outbound.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		if err := a.write(msg.ChargeBoxID, msg.Content); err != nil {
			a.log.Error("Failed to write outbound call", "charge_box_id", msg.ChargeBoxID, "message_id", msg.MessageID, "error", err)
		}
	}
}

func (a *Adapter) write(chargeBoxID string, frame string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.log.Debug("Sending frame", "charge_box_id", chargeBoxID, "content", previewText(frame))
	if _, err := fmt.Fprintf(a.out, "%s %s\n", chargeBoxID, frame); err != nil {
		return fmt.Errorf("write console output: %w", err)
	}
	return nil
}

// parseLine splits "<chargeBoxID> <frame>".
func parseLine(line string) (string, string, bool) {
	chargeBoxID, frame, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return "", "", false
	}
	frame = strings.TrimSpace(frame)
	if chargeBoxID == "" || frame == "" {
		return "", "", false
	}
	return chargeBoxID, frame, true
}

// chargeBoxAllowed checks the allow_from list. An empty list accepts every
// charge box.
func (a *Adapter) chargeBoxAllowed(chargeBoxID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(chargeBoxID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of a frame.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
