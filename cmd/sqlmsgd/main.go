// Command sqlmsgd serves a SQLite engine to sqlmsg clients over net/rpc.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"time"

	_ "github.com/anacrolix/envpprof"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/sqlmsg"
	"github.com/anacrolix/sqlmsg/sqlite"
)

func refsHandler(s *sqlmsg.Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for ref, val := range s.Refs() {
			fmt.Fprintf(w, "%d: %#v\n\n", ref, val)
		}
	})
}

func main() {
	log.SetFlags(log.Flags() | log.Llongfile)
	addr := flag.String("addr", ":6033", "listen")
	expiry := flag.Duration("expiry", time.Minute, "release handles unused for this long")
	flag.Parse()
	if flag.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "unexpected positional arguments\n")
		os.Exit(2)
	}
	engine := sqlite.NewEngine()
	defer engine.Close()
	s := &sqlmsg.Service{Engine: engine, Expiry: *expiry}
	defer s.Close()
	if err := rpc.RegisterName(sqlmsg.ServiceName, s); err != nil {
		log.Fatal(err)
	}
	rpc.HandleHTTP()
	http.Handle("/refs", refsHandler(s))
	l, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("serving on %s", l.Addr())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	srv := &http.Server{}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Print(err)
	}
}
