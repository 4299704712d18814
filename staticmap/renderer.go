package staticmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Renderer turns a point sequence into image bytes. Implementations may
// call out over the network; they must honor ctx.
type Renderer interface {
	Render(ctx context.Context, points []GeoPoint, opts RenderOptions) ([]byte, error)
}

// RenderOptions sizes the requested image.
type RenderOptions struct {
	Width  int
	Height int
}

// HTTPRendererConfig configures the remote rendering client.
type HTTPRendererConfig struct {
	// URL of the render endpoint. The renderer posts a JSON point
	// payload and expects image bytes back.
	URL string

	// Timeout bounds each render call. Zero means 10 seconds.
	Timeout time.Duration

	// MaxFailures is the consecutive-failure count that opens the
	// circuit. Zero means 5.
	MaxFailures uint32

	Log zerolog.Logger
}

// HTTPRenderer renders through an external HTTP service, guarded by a
// circuit breaker so a dead renderer fails fast instead of holding
// request slots for the full timeout.
type HTTPRenderer struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     zerolog.Logger
}

// NewHTTPRenderer builds a renderer client for cfg.URL.
func NewHTTPRenderer(cfg HTTPRendererConfig) *HTTPRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}

	r := &HTTPRenderer{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    cfg.Log,
	}
	r.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "map-renderer",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("render circuit state changed")
		},
	})
	return r
}

type renderRequest struct {
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Points []renderPoint `json:"points"`
}

type renderPoint struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Ele *float64 `json:"ele,omitempty"`
}

// Render posts the point sequence and returns the image bytes as-is.
// When the circuit is open the call fails immediately with
// gobreaker.ErrOpenState in the error chain.
func (r *HTTPRenderer) Render(ctx context.Context, points []GeoPoint, opts RenderOptions) ([]byte, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("staticmap: no points to render")
	}

	req := renderRequest{
		Width:  opts.Width,
		Height: opts.Height,
		Points: make([]renderPoint, len(points)),
	}
	for i, p := range points {
		rp := renderPoint{Lat: p.Latitude, Lon: p.Longitude}
		if p.HasAltitude {
			ele := p.Altitude
			rp.Ele = &ele
		}
		req.Points[i] = rp
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("staticmap: marshal render request: %w", err)
	}

	img, err := r.breaker.Execute(func() ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("renderer returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, fmt.Errorf("staticmap: render: %w", err)
	}
	return img, nil
}
