package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/q0/pkg/config"
	"github.com/charlie0129/q0/pkg/events"
	"github.com/charlie0129/q0/pkg/types"
)

func (c *Client) SetMinRunDuration(seconds int) (string, error) {
	return c.Put("/min-run-duration", strconv.Itoa(seconds))
}

func (c *Client) SetCheckUpstreamLevel(enabled bool) (string, error) {
	return c.Put("/check-upstream-level", strconv.FormatBool(enabled))
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (*types.VersionResponse, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get version")
	}

	var v types.VersionResponse
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return &v, nil
}

// SubmitCalibration sends a calibration session to the daemon for processing.
func (c *Client) SubmitCalibration(req *types.SessionRequest) (*types.SessionResponse, error) {
	return c.submit("/calibrations", req)
}

// SubmitMeasurement sends a measurement session to the daemon. The
// calibration named by req.CalibrationID must be known to the daemon.
func (c *Client) SubmitMeasurement(req *types.SessionRequest) (*types.SessionResponse, error) {
	return c.submit("/measurements", req)
}

func (c *Client) submit(path string, req *types.SessionRequest) (*types.SessionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to marshal session %s", req.Name)
	}
	ret, err := c.Post(path, string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to process session %s", req.Name)
	}
	return parseSession(ret)
}

func (c *Client) GetCalibration(id string) (*types.SessionResponse, error) {
	ret, err := c.Get("/calibrations/" + id)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration %s", id)
	}
	return parseSession(ret)
}

func (c *Client) GetMeasurement(id string) (*types.SessionResponse, error) {
	ret, err := c.Get("/measurements/" + id)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get measurement %s", id)
	}
	return parseSession(ret)
}

func parseSession(ret string) (*types.SessionResponse, error) {
	var s types.SessionResponse
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal session")
	}
	return &s, nil
}

// Events streams daemon events until ctx is cancelled or the daemon goes
// away. The returned channel is closed when the stream ends.
func (c *Client) Events(ctx context.Context) (<-chan events.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("got %d subscribing to events", resp.StatusCode)
	}

	ch := make(chan events.Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var ev events.Event
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			case line == "":
				if ev.Name == "" {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
				ev = events.Event{}
			}
		}
	}()
	return ch, nil
}

func (c *Client) GetSchedule() (*types.ScheduleResponse, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedule")
	}

	var s types.ScheduleResponse
	if err := json.Unmarshal([]byte(ret), &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &s, nil
}

// SetSchedule sets the cron expression of the batch plan. An empty
// expression disables scheduled runs.
func (c *Client) SetSchedule(cronExpr string) (string, error) {
	b, err := json.Marshal(cronExpr)
	if err != nil {
		return "", err
	}
	return c.Put("/schedule", string(b))
}

func (c *Client) SkipSchedule() (string, error) {
	return c.Post("/schedule/skip", "")
}

// RunSchedule starts a batch run right away.
func (c *Client) RunSchedule() (string, error) {
	return c.Post("/schedule/run", "")
}

func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	return c.Post("/schedule/postpone", strconv.Itoa(int(d/time.Second)))
}
