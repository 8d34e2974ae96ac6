// Package smtp is a minimal SMTP listener module exercising a background
// listener goroutine, dynamic require of chanserv for delivery
// notifications, and graceful shutdown via context cancellation — grounded
// on modules/httpserver's net/http listener lifecycle, adapted from HTTP to
// a raw net.Listener speaking the SMTP command/reply line shape over
// net/textproto.
package smtp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"sync"

	"github.com/lbbs/loader/bbsmodule"
	"github.com/lbbs/loader/modules/chanserv"
)

const Name = "smtp"

type server struct {
	addr     string
	ln       net.Listener
	wg       sync.WaitGroup
	stop     chan struct{}
	chanserv bbsmodule.Handle
	log      bbsmodule.Logger
}

var instance *server

func load(ctx context.Context, self bbsmodule.Handle) error {
	chanservHandle, err := self.Require(ctx, chanserv.Name)
	if err != nil {
		return fmt.Errorf("smtp: require chanserv: %w", err)
	}

	ln, err := net.Listen("tcp", ":2525")
	if err != nil {
		return fmt.Errorf("smtp: listen: %w", err)
	}

	s := &server{
		addr:     ln.Addr().String(),
		ln:       ln,
		stop:     make(chan struct{}),
		chanserv: chanservHandle,
		log:      self.Logger(),
	}
	instance = s

	s.wg.Add(1)
	go s.acceptLoop()

	self.Logger().Info("smtp listening", "addr", s.addr)
	return nil
}

func (s *server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
				s.log.Warn("smtp: accept error", "error", err)
				return
			}
		}
		go s.handle(conn)
	}
}

func (s *server) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	tp.Writer.W = bufio.NewWriter(conn)
	_ = tp.PrintfLine("220 lbbs smtp ready")

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		if line == "QUIT" {
			_ = tp.PrintfLine("221 bye")
			chanserv.Service().PublishMailboxEvent("delivered", "inbox")
			return
		}
		_ = tp.PrintfLine("250 OK")
	}
}

func unload(ctx context.Context, self bbsmodule.Handle) error {
	if instance == nil {
		return nil
	}
	close(instance.stop)
	_ = instance.ln.Close()
	instance.wg.Wait()

	if err := self.Unrequire(ctx, instance.chanserv); err != nil {
		return fmt.Errorf("smtp: unrequire chanserv: %w", err)
	}
	instance = nil
	return nil
}

// BBSRegister is the well-known constructor symbol.
func BBSRegister(r bbsmodule.Registrar) error {
	_, err := r.Register(bbsmodule.Descriptor{
		Name:        Name,
		Description: "minimal SMTP listener",
		Entrypoints: bbsmodule.Entrypoints{
			Load:   load,
			Unload: unload,
		},
	})
	return err
}
