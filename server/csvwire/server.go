package csvwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geoyogesh/csvscan"
	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/logging"
	"github.com/geoyogesh/csvscan/internal/sql/executor"
)

type ServerConfig struct {
	Addr string

	// Catalog is shared by every connection.
	Catalog  *csvscan.Catalog
	Defaults csvformat.Options

	// IdleTimeout closes a connection that sends nothing for this long (0 = never).
	IdleTimeout time.Duration
	Parallelism int
}

// Run listens on sc.Addr and serves until ctx is done.
func Run(ctx context.Context, sc ServerConfig) error {
	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return Serve(ctx, ln, sc)
}

// Serve accepts connections on ln until ctx is done, then waits for open
// sessions to finish. ln is closed on return.
func Serve(ctx context.Context, ln net.Listener, sc ServerConfig) error {
	if sc.Catalog == nil {
		_ = ln.Close()
		return fmt.Errorf("csvwire: nil catalog")
	}
	defer func() { _ = ln.Close() }()

	slog.Info("csvscan tcp server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				slog.Info("csvscan tcp server stopped")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, conn, sc)
		}()
	}
}

func handleConn(ctx context.Context, conn net.Conn, sc ServerConfig) {
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// unblock ReadFrame on shutdown
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sessionID := uuid.NewString()
	ctx = logging.WithFields(ctx, "session_id", sessionID, "remote", conn.RemoteAddr().String())
	log := logging.FromContext(ctx)
	log.Info("session opened")

	ex := executor.NewExecutor(sc.Catalog, sc.Defaults)
	ex.Parallelism = sc.Parallelism

	var statements int
	defer func() { log.Info("session closed", "statements", statements) }()

	for {
		if sc.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(sc.IdleTimeout))
		}

		var req ExecuteRequest
		if err := ReadFrame(conn, &req); err != nil {
			// Client closed, idle timeout or bad frame.
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug("read frame", "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Time{})
		statements++

		start := time.Now()
		res, err := ex.ExecSQL(ctx, req.SQL)
		if err != nil {
			resp := errorResponse(req.ID, err)
			log.Info("statement failed", "id", req.ID, "kind", resp.ErrorKind, "err", err)
			if werr := WriteFrame(conn, resp); werr != nil {
				return
			}
			continue
		}

		log.Debug("statement executed", "id", req.ID, "rows", res.AffectedRows, "elapsed", time.Since(start))
		err = WriteFrame(conn, ExecuteResponse{ID: req.ID, Result: res})
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrFrameTooLarge) {
			log.Debug("write frame", "err", err)
			return
		}
		// nothing was sent; report the oversized result in its place
		log.Info("result too large", "id", req.ID, "rows", len(res.Rows), "err", err)
		err = fmt.Errorf("result of %d rows: %w", len(res.Rows), err)
		if werr := WriteFrame(conn, errorResponse(req.ID, err)); werr != nil {
			return
		}
	}
}
