// Command crdtstore-admin is a thin debug/inspection HTTP surface over the
// query surface and the merge engine. It is not the host-runtime binding
// spec.md scopes out (spec §1) — it exists to exercise the wire contract
// of spec §6 the way the teacher exercises its own domain over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edirooss/crdtstore/internal/config"
	"github.com/edirooss/crdtstore/internal/env"
	"github.com/edirooss/crdtstore/pkg/eventpub"
	"github.com/edirooss/crdtstore/pkg/eventsink"
	"github.com/edirooss/crdtstore/pkg/hubstoreerr"
	"github.com/edirooss/crdtstore/pkg/kv/memkv"
	"github.com/edirooss/crdtstore/pkg/query"
	"github.com/edirooss/crdtstore/pkg/store"
	"github.com/edirooss/crdtstore/pkg/wire"
)

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	return zap.Must(logConfig.Build())
}

// requestID stamps every request with a UUID, attached before ZapLogger so
// it shows up in every subsequent log line for that request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// zapLogger logs one line per request, mirroring the teacher's ZapLogger
// middleware (cmd/zmux-server/main.go).
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		// Duplicate and conflict rejections are ordinary outcomes, not defects.
		expected := len(errs) > 0
		for _, err := range errs {
			if !hubstoreerr.Expected(err) {
				expected = false
			}
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400 && expected:
			log.Debug("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// writeErr replies with the "<code>/<message>" wire contract of spec §6,
// choosing an HTTP status from the taxonomy code.
func writeErr(c *gin.Context, err error) {
	he, ok := err.(*hubstoreerr.HubError)
	if !ok {
		he = hubstoreerr.DBInternal(err)
	}
	_ = c.Error(he)

	status := http.StatusInternalServerError
	switch he.Code {
	case hubstoreerr.CodeInvalidParam, hubstoreerr.CodeValidationFailure, hubstoreerr.CodeConflict, hubstoreerr.CodeDuplicate:
		status = http.StatusBadRequest
	case hubstoreerr.CodeNotFound:
		status = http.StatusNotFound
	}
	c.Data(status, "text/plain; charset=utf-8", []byte(he.Wire()))
}

func postfixFromParam(c *gin.Context) (byte, bool) {
	s := c.Param("postfix")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		if n2, ok := env.LookupName(s); ok {
			return n2, true
		}
		return 0, false
	}
	return byte(n), true
}

func fidFromParam(c *gin.Context) (uint32, bool) {
	n, err := strconv.ParseUint(c.Param("fid"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func pageOptionsFromQuery(c *gin.Context) query.PageOptions {
	opts := query.PageOptions{Reverse: c.Query("reverse") == "true"}
	if ps, err := strconv.Atoi(c.Query("page_size")); err == nil {
		opts.PageSize = ps
	}
	opts.PageToken = []byte(c.Query("page_token"))
	if len(opts.PageToken) == 0 {
		opts.PageToken = nil
	}
	return opts
}

func main() {
	log := buildLogger().Named("main")
	defer log.Sync()

	cfg := config.Load()

	eng := memkv.New(log)
	sink := eventsink.New(log)
	s := store.New(log, eng, sink, cfg.StoreOptions(), env.NewStoreKinds()...)
	q := query.New(log, s)
	pub := eventpub.New(log, cfg.EventPubOptions())
	defer pub.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"127.0.0.1"})

	r.Use(gin.Recovery())
	r.Use(secure.New(secure.Config{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	}))
	if cfg.Dev {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(requestID())
	r.Use(zapLogger(log))

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.POST("/api/kinds/:postfix/merge", func(c *gin.Context) {
		postfix, ok := postfixFromParam(c)
		if !ok {
			writeErr(c, hubstoreerr.InvalidParam("unknown store kind"))
			return
		}
		body, err := c.GetRawData()
		if err != nil {
			writeErr(c, hubstoreerr.InvalidParam("failed to read request body"))
			return
		}
		m, err := wire.DecodeMessage(body)
		if err != nil {
			writeErr(c, err)
			return
		}

		event, err := s.Merge(c.Request.Context(), postfix, m)
		if err != nil {
			writeErr(c, err)
			return
		}

		if err := pub.Publish(context.Background(), event); err != nil {
			log.Warn("event publish failed after merge", zap.Error(err), zap.Uint64("event_id", event.ID))
		}

		c.Data(http.StatusOK, "application/octet-stream", wire.EncodeEvent(event))
	})

	r.GET("/api/kinds/:postfix/fids/:fid/adds", func(c *gin.Context) {
		postfix, ok := postfixFromParam(c)
		if !ok {
			writeErr(c, hubstoreerr.InvalidParam("unknown store kind"))
			return
		}
		fid, ok := fidFromParam(c)
		if !ok {
			writeErr(c, hubstoreerr.InvalidParam("invalid fid"))
			return
		}
		page, err := q.GetAddsByFid(c.Request.Context(), postfix, fid, pageOptionsFromQuery(c), nil)
		if err != nil {
			writeErr(c, err)
			return
		}
		writeMessagePage(c, page)
	})

	r.GET("/api/kinds/:postfix/fids/:fid/removes", func(c *gin.Context) {
		postfix, ok := postfixFromParam(c)
		if !ok {
			writeErr(c, hubstoreerr.InvalidParam("unknown store kind"))
			return
		}
		fid, ok := fidFromParam(c)
		if !ok {
			writeErr(c, hubstoreerr.InvalidParam("invalid fid"))
			return
		}
		page, err := q.GetRemovesByFid(c.Request.Context(), postfix, fid, pageOptionsFromQuery(c), nil)
		if err != nil {
			writeErr(c, err)
			return
		}
		writeMessagePage(c, page)
	})

	r.GET("/api/kinds/:postfix/fids/:fid/messages", func(c *gin.Context) {
		postfix, ok := postfixFromParam(c)
		if !ok {
			writeErr(c, hubstoreerr.InvalidParam("unknown store kind"))
			return
		}
		fid, ok := fidFromParam(c)
		if !ok {
			writeErr(c, hubstoreerr.InvalidParam("invalid fid"))
			return
		}
		page, err := q.GetAllMessagesByFid(c.Request.Context(), postfix, fid, pageOptionsFromQuery(c))
		if err != nil {
			writeErr(c, err)
			return
		}
		writeMessagePage(c, page)
	})

	r.POST("/api/admin/clear", func(c *gin.Context) {
		n, err := q.Clear(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		log.Warn("admin clear invoked", zap.Int("keys_deleted", n), zap.String("request_id", c.GetString("request_id")))
		c.JSON(http.StatusOK, gin.H{"keys_deleted": n})
	})

	httpServer := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}

	log.Info("running HTTP server", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server failed", zap.Error(err))
	}
}

// writeMessagePage frames each message with its own length, since a page
// is a variable number of variable-length wire messages rather than one
// self-delimiting record.
func writeMessagePage(c *gin.Context, page *query.Page) {
	var out []byte
	for _, m := range page.Messages {
		enc := wire.EncodeMessage(m)
		out = appendUvarint(out, uint64(len(enc)))
		out = append(out, enc...)
	}
	if page.NextPageToken != nil {
		c.Header("X-Next-Page-Token", string(page.NextPageToken))
	}
	c.Data(http.StatusOK, "application/octet-stream", out)
}

func appendUvarint(b []byte, v uint64) []byte {
	var buf [10]byte
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)
	n++
	return append(b, buf[:n]...)
}
