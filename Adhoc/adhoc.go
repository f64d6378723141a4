package adhoc

import (
	"context"
	"fmt"
	"net"
	"time"

	"CamDetLoop/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CpuInstance     = 0x2002
	CudaInstance    = 0x2003
	EdgeTPUInstance = 0x2005
	TimeOutSeconds  = 5
)

type RegisterRequest struct {
	Id            string  `json:"id"`
	IP            string  `json:"ip"`
	Port          int     `json:"port"`
	InstanceClass int     `json:"instanceClass"`
	TimeStamp     int64   `json:"timestamp"`
	FPS           float64 `json:"fps"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

// ParseInstanceClass maps the config name onto the class code. Unknown names
// fall back to Cpu.
func ParseInstanceClass(name string) (int, bool) {
	switch name {
	case "Cpu":
		return CpuInstance, true
	case "Cuda":
		return CudaInstance, true
	case "EdgeTPU":
		return EdgeTPUInstance, true
	}
	return CpuInstance, false
}

// GetOutboundIP reports the local address used to reach the outside world.
// No packet is sent; dialing UDP only consults the routing table.
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

// Heartbeat announces this instance to a registration server.
type Heartbeat struct {
	ID            string
	URL           string
	IP            string
	Port          int
	InstanceClass int
	Interval      time.Duration
	// FPS, when set, is sampled into every heartbeat.
	FPS func() float64

	client *resty.Client
	log    *zap.Logger
}

func NewHeartbeat(host string, port int, ip string, servicePort int, instanceClass int, interval time.Duration, log *zap.Logger) *Heartbeat {
	if interval <= 0 {
		interval = TimeOutSeconds * time.Second
	}
	return &Heartbeat{
		ID:            uuid.NewString(),
		URL:           fmt.Sprintf("http://%s:%d/api/register", host, port),
		IP:            ip,
		Port:          servicePort,
		InstanceClass: instanceClass,
		Interval:      interval,
		client:        resty.New().SetTimeout(TimeOutSeconds * time.Second),
		log:           logger.OrDefault(log, "adhoc"),
	}
}

// Send posts a single registration.
func (h *Heartbeat) Send(ctx context.Context) (*RegisterResponse, error) {
	req := RegisterRequest{
		Id:            h.ID,
		IP:            h.IP,
		Port:          h.Port,
		InstanceClass: h.InstanceClass,
		TimeStamp:     time.Now().Unix(),
	}
	if h.FPS != nil {
		req.FPS = h.FPS()
	}
	var respBody RegisterResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&respBody).
		Post(h.URL)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	return &respBody, nil
}

// Run sends a heartbeat immediately and then every Interval until ctx is
// done. Failed heartbeats are logged and retried on the next tick.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		if _, err := h.Send(ctx); err != nil && ctx.Err() == nil {
			h.log.Error("heartbeat failed", zap.String("URL", h.URL), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			h.log.Info("heartbeat stopped")
			return nil
		case <-ticker.C:
		}
	}
}
