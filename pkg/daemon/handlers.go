package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/q0/pkg/config"
	"github.com/charlie0129/q0/pkg/events"
	"github.com/charlie0129/q0/pkg/q0"
	"github.com/charlie0129/q0/pkg/types"
	"github.com/charlie0129/q0/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func setMinRunDuration(c *gin.Context) {
	var s int
	if err := c.BindJSON(&s); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if s < 60 {
		err := fmt.Errorf("minimum run duration must be at least 60 seconds, got %d", s)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetMinRunDuration(time.Duration(s) * time.Second)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set minimum run duration to %ds", s)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set minimum run duration to %ds", s))
}

func setCheckUpstreamLevel(c *gin.Context) {
	var b bool
	if err := c.BindJSON(&b); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetCheckUpstreamLevel(b)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set check upstream level to %t", b)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func postCalibration(c *gin.Context) {
	submit(c, q0.KindCalibration)
}

func postMeasurement(c *gin.Context) {
	submit(c, q0.KindMeasurement)
}

func submit(c *gin.Context, kind q0.SessionKind) {
	var req types.SessionRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	s, err := process(c, kind, &req)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrUnknownCalibration):
			code = http.StatusNotFound
		case errors.Is(err, q0.ErrInputData):
			code = http.StatusBadRequest
		}
		sseHub.Publish(events.SessionFailed, events.SessionEvent{
			Name:    req.Name,
			Kind:    string(kind),
			Message: err.Error(),
			Ts:      time.Now().Unix(),
		})
		c.IndentedJSON(code, err.Error())
		_ = c.AbortWithError(code, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, types.NewSessionResponse(s))
}

func process(c *gin.Context, kind q0.SessionKind, req *types.SessionRequest) (*q0.Session, error) {
	params := conf.Params()
	if req.Params != nil {
		params = *req.Params
	}
	buf, err := req.Buffer()
	if err != nil {
		return nil, err
	}

	var s *q0.Session
	if kind == q0.KindCalibration {
		s, err = q0.NewCalibrationSession(req.Name, req.Window, req.References, params, buf)
	} else {
		var curve *q0.Curve
		curve, err = reg.curve(c.Request.Context(), req.CalibrationID)
		if err != nil {
			return nil, err
		}
		s, err = q0.NewMeasurementSession(req.Name, req.Window, req.References, params, buf, curve)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Process(); err != nil {
		return nil, err
	}

	reg.add(s)
	if out := sinks(); len(out) > 0 {
		if err := out.SaveSession(c.Request.Context(), s); err != nil {
			logrus.WithError(err).WithField("id", s.ID()).Error("failed to save session")
		}
	}

	logrus.WithFields(logrus.Fields{
		"id":   s.ID(),
		"name": s.Name(),
		"kind": s.Kind(),
		"runs": len(s.Runs()),
	}).Info("session processed")
	sseHub.Publish(events.SessionProcessed, events.SessionEvent{
		ID:   s.ID(),
		Name: s.Name(),
		Kind: string(s.Kind()),
		Runs: len(s.Runs()),
		Ts:   time.Now().Unix(),
	})
	return s, nil
}

func getCalibration(c *gin.Context) {
	id := c.Param("id")
	if s, ok := reg.session(id); ok && s.Kind == q0.KindCalibration {
		c.IndentedJSON(http.StatusOK, s)
		return
	}

	// processed before a restart or by another daemon
	curve, err := reg.curve(c.Request.Context(), id)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownCalibration) {
			code = http.StatusNotFound
		}
		c.IndentedJSON(code, err.Error())
		_ = c.AbortWithError(code, err)
		return
	}
	c.IndentedJSON(http.StatusOK, &types.SessionResponse{
		ID:    id,
		Kind:  q0.KindCalibration,
		Curve: curve,
	})
}

func getMeasurement(c *gin.Context) {
	s, ok := reg.session(c.Param("id"))
	if !ok || s.Kind != q0.KindMeasurement {
		err := fmt.Errorf("measurement %s not found", c.Param("id"))
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, s)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, types.VersionResponse{
		Version:   version.Version,
		GitCommit: version.GitCommit,
	})
}

func getSchedule(c *gin.Context) {
	next, busy := sched.Status()
	c.IndentedJSON(http.StatusOK, types.ScheduleResponse{
		Plan:     conf.BatchPlan(),
		Schedule: conf.BatchSchedule(),
		NextRun:  next,
		Busy:     busy,
	})
}

func setSchedule(c *gin.Context) {
	var expr string
	if err := c.BindJSON(&expr); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if expr != "" && conf.BatchPlan() == "" {
		err := fmt.Errorf("no batch plan configured, set batchPlan in the config first")
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := sched.Schedule(expr); err != nil {
		err = fmt.Errorf("invalid schedule %q: %w", expr, err)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetBatchSchedule(expr)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	next, _ := sched.Status()
	msg := "batch schedule disabled"
	if !next.IsZero() {
		msg = fmt.Sprintf("next batch run at %s", next.Format(time.DateTime))
	}
	logrus.Info(msg)

	c.IndentedJSON(http.StatusCreated, msg)
}

func skipSchedule(c *gin.Context) {
	if err := sched.Skip(); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}
	next, _ := sched.Status()
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("next batch run at %s", next.Format(time.DateTime)))
}

func postponeSchedule(c *gin.Context) {
	var seconds int
	if err := c.BindJSON(&seconds); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if seconds <= 0 {
		err := fmt.Errorf("postpone duration must be positive, got %ds", seconds)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if err := sched.Postpone(time.Duration(seconds) * time.Second); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}
	next, _ := sched.Status()
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("next batch run at %s", next.Format(time.DateTime)))
}

func runSchedule(c *gin.Context) {
	if err := checkBatchPlan(); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if err := sched.RunNow(); err != nil {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}
	c.IndentedJSON(http.StatusAccepted, "batch run started")
}
