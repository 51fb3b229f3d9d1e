package canbus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/roffe/gocan"
	"github.com/roffe/gocan/adapter"
	"github.com/roffe/udsfuzz/pkg/config"
	"github.com/roffe/udsfuzz/pkg/logger"
)

const (
	openRetryDelay = 500 * time.Millisecond
	firmwareWait   = time.Second
)

// ErrFirmware is returned when the adapter firmware is older than min_firmware.
var ErrFirmware = errors.New("adapter firmware too old")

// GoCAN is a Bus on top of a gocan client.
type GoCAN struct {
	cl     *gocan.Client
	rx     chan Frame
	cancel context.CancelFunc
}

// OpenGoCAN creates the adapter and client, retrying failed attempts.
func OpenGoCAN(ctx context.Context, cfg config.Adapter) (*GoCAN, error) {
	if _, found := adapter.GetAdapterMap()[cfg.Name]; !found {
		return nil, fmt.Errorf("unknown adapter %q", cfg.Name)
	}
	var bus *GoCAN
	err := retry.Do(
		func() error {
			b, err := openGoCAN(ctx, cfg)
			if err != nil {
				return err
			}
			bus = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.OpenAttempts)),
		retry.Delay(openRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("open adapter failed", "adapter", cfg.Name, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
	}
	return bus, nil
}

func openGoCAN(ctx context.Context, cfg config.Adapter) (*GoCAN, error) {
	versions := make(chan string, 1)
	dev, err := adapter.New(cfg.Name, &gocan.AdapterConfig{
		Port:          cfg.Port,
		PortBaudrate:  cfg.Baudrate,
		CANRate:       cfg.CANRate,
		UseExtendedID: cfg.ExtendedID,
		PrintVersion:  cfg.MinFirmware != "",
		OnMessage: func(s string) {
			logger.Debug("adapter message", "msg", s)
			if v, ok := firmwareVersion(s); ok {
				select {
				case versions <- v:
				default:
				}
			}
		},
		OnError: func(err error) {
			logger.Error("adapter error", "err", err)
		},
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	cl, err := gocan.New(cctx, dev)
	if err != nil {
		cancel()
		return nil, err
	}

	if cfg.MinFirmware != "" {
		var version string
		select {
		case version = <-versions:
		case <-time.After(firmwareWait):
		case <-ctx.Done():
			cl.Close()
			cancel()
			return nil, ctx.Err()
		}
		if err := checkFirmware(cfg, version); err != nil {
			cl.Close()
			cancel()
			return nil, retry.Unrecoverable(err)
		}
	}

	g := &GoCAN{
		cl:     cl,
		rx:     make(chan Frame, virtualQueueSize),
		cancel: cancel,
	}

	sub := cl.SubscribeChan(cctx)
	go func() {
		for {
			select {
			case msg, ok := <-sub:
				if !ok {
					return
				}
				f := Frame{ID: msg.Identifier(), Data: append([]byte(nil), msg.Data()...)}
				select {
				case g.rx <- f:
				default:
					logger.Warn("receive queue full, dropping frame", "frame", f.String())
				}
			case <-cctx.Done():
				return
			}
		}
	}()
	return g, nil
}

var versionRe = regexp.MustCompile(`v?(\d+(?:\.\d+){1,2})`)

// firmwareVersion extracts a semantic version from an adapter version
// message, "Firmware version: 1.02.03" yields "v1.2.3".
func firmwareVersion(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	if !strings.Contains(lower, "version") && !strings.HasPrefix(lower, "elm327") && !strings.HasPrefix(lower, "stn") {
		return "", false
	}
	m := versionRe.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	parts := strings.Split(m[1], ".")
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", false
		}
		parts[i] = strconv.Itoa(n)
	}
	return "v" + strings.Join(parts, "."), true
}

// checkFirmware fails when the reported version is below min_firmware. An
// adapter that never reports a version is let through with a warning.
func checkFirmware(cfg config.Adapter, version string) error {
	if version == "" {
		logger.Warn("adapter did not report a firmware version", "adapter", cfg.Name, "min_firmware", cfg.MinFirmware)
		return nil
	}
	if !cfg.FirmwareSatisfies(version) {
		return fmt.Errorf("%w: %s reports %s, need %s", ErrFirmware, cfg.Name, version, cfg.MinFirmware)
	}
	logger.Debug("adapter firmware", "adapter", cfg.Name, "version", version)
	return nil
}

func (g *GoCAN) Send(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.cl.Send(gocan.NewFrame(f.ID, f.Data, gocan.Outgoing))
}

func (g *GoCAN) Recv(ctx context.Context, timeout time.Duration) (*Frame, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case f := <-g.rx:
		return &f, nil
	case <-t.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *GoCAN) Close() error {
	defer g.cancel()
	return g.cl.Close()
}

// AdapterInfo describes an adapter known to gocan.
type AdapterInfo struct {
	Name               string
	Description        string
	RequiresSerialPort bool
}

// Adapters lists the adapters gocan was built with.
func Adapters() []AdapterInfo {
	var out []AdapterInfo
	for _, name := range adapter.List() {
		a, ok := adapter.GetAdapterMap()[name]
		if !ok {
			continue
		}
		out = append(out, AdapterInfo{
			Name:               a.Name,
			Description:        a.Description,
			RequiresSerialPort: a.RequiresSerialPort,
		})
	}
	return out
}
