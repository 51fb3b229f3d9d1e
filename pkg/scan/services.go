package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/udsfuzz/pkg/ebus"
	"github.com/roffe/udsfuzz/pkg/logger"
	"github.com/roffe/udsfuzz/pkg/uds"
)

// Requester sends one request and waits for its response. A nil response
// means nothing answered in time.
type Requester interface {
	Request(ctx context.Context, sid byte, payload ...byte) (*uds.Response, error)
}

type ServiceConfig struct {
	// RequestDelay is slept before every probe.
	RequestDelay time.Duration
	Events       *ebus.Bus
	Logger       logger.Logger
}

// ServiceScanner probes every service id on one address pair.
type ServiceScanner struct {
	client Requester
	cfg    ServiceConfig
	log    logger.Logger
}

func NewServiceScanner(client Requester, cfg ServiceConfig) (*ServiceScanner, error) {
	if cfg.RequestDelay < 0 {
		return nil, fmt.Errorf("%w: request delay must not be negative", ErrInvalidConfig)
	}
	return &ServiceScanner{
		client: client,
		cfg:    cfg,
		log:    logger.Or(cfg.Logger).With("scanner", "services"),
	}, nil
}

// Supported reports whether a probe response proves the service exists.
// Anything but "service not supported" counts, including other negative
// responses.
func Supported(resp *uds.Response) bool {
	if resp == nil {
		return false
	}
	return resp.Positive || resp.NRC != uds.SERVICE_NOT_SUPPORTED
}

// Run sends a bare one byte request for each service id 0x00..0xFF and
// returns the supported ids in ascending order.
func (s *ServiceScanner) Run(ctx context.Context) ([]byte, error) {
	var found []byte
	for sid := 0; sid <= 0xFF; sid++ {
		if err := ctx.Err(); err != nil {
			return found, interrupted(err)
		}
		s.cfg.Events.Publish(TopicServiceID, float64(sid))
		if err := sleep(ctx, s.cfg.RequestDelay); err != nil {
			return found, interrupted(err)
		}
		resp, err := s.client.Request(ctx, byte(sid))
		if err != nil {
			if ctx.Err() != nil {
				return found, interrupted(ctx.Err())
			}
			s.log.Warn("request failed", "service", fmt.Sprintf("0x%02x", sid), "err", err)
			continue
		}
		if !Supported(resp) {
			continue
		}
		s.log.Debug("supported service", "service", fmt.Sprintf("0x%02x", sid), "name", uds.ServiceName(byte(sid)))
		found = append(found, byte(sid))
		s.cfg.Events.Publish(TopicServices, float64(len(found)))
	}
	return found, nil
}
