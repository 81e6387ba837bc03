// Command goblinderd runs a minimal in-process Binder demo: a manager
// process and a client process join a named context, the client sends one
// synchronous transaction to the manager, and the manager replies.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/goblinder/goblinder"
	"github.com/goblinder/goblinder/internal/logging"
)

func main() {
	var (
		contextName = flag.String("context", "default", "name of the Binder context to join")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	rt := goblinder.NewRuntime(goblinder.WithLogger(logger))
	bctx := rt.OpenContext(*contextName)

	manager, err := bctx.NewProcess(1, 0, goblinder.DefaultProcessConfig())
	if err != nil {
		log.Fatalf("create manager process: %v", err)
	}
	defer manager.Close()

	if err := manager.SetAsManager(0, 0, 0); err != nil {
		log.Fatalf("set as manager: %v", err)
	}
	managerThread := manager.NewThread(1)

	client, err := bctx.NewProcess(2, 0, goblinder.DefaultProcessConfig())
	if err != nil {
		log.Fatalf("create client process: %v", err)
	}
	defer client.Close()
	clientThread := client.NewThread(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w, err := managerThread.Read(ctx)
		if err != nil {
			logger.Error("manager read failed", "error", err)
			return
		}
		txn, ok := w.Transaction()
		if !ok {
			logger.Error("expected a transaction, got something else")
			return
		}
		logger.Info("manager received transaction", "code", txn.Code)
		if err := managerThread.Reply(0, 0, []byte("pong"), nil); err != nil {
			logger.Error("manager reply failed", "error", err)
		}
	}()

	if err := clientThread.Transact(0, 1 /* code */, 0, []byte("ping"), nil); err != nil {
		log.Fatalf("client transact: %v", err)
	}

	w, err := clientThread.Read(ctx)
	if err != nil {
		log.Fatalf("client read: %v", err)
	}
	switch w.Kind() {
	case goblinder.KindTransactionComplete:
		logger.Info("client transaction accepted, awaiting reply")
		w, err = clientThread.Read(ctx)
		if err != nil {
			log.Fatalf("client read reply: %v", err)
		}
	}
	if reply, ok := w.Transaction(); ok {
		logger.Info("client received reply", "code", reply.Code)
	}

	<-done
	logger.Info("demo complete")
}
