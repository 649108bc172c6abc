// gclink is ground control link service and interactive shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/alive/v2"
	"github.com/temoto/gclink/broker"
	"github.com/temoto/gclink/config"
	"github.com/temoto/gclink/helpers/cli"
	"github.com/temoto/gclink/log2"
	"github.com/temoto/gclink/tlog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = log2.NewStderr(log2.LDebug)

func main() {
	flagConfig := flag.String("config", "gclink.hcl", "")
	flagInteractive := flag.Bool("interactive", false, "run command shell")
	flag.Parse()

	underSystemd := sdnotify("start")
	if underSystemd {
		// journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	c := config.MustReadConfig(log, config.NewOsFullReader(), *flagConfig)
	log = newLog(c, underSystemd)
	log.Debugf("config %s", c)

	var pub *tlog.MQTTClient
	if c.Upload.Enable {
		var err error
		if pub, err = tlog.NewMQTTClient(c.MQTTConfig(), log); err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
	}
	bc := c.BrokerConfig(nil)
	if pub != nil {
		bc = c.BrokerConfig(pub)
	}
	b, err := broker.New(bc, log)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	colored := c.Log.Color && isatty.IsTerminal(os.Stdout.Fd())
	con := newConsole(os.Stdout, colored, log)
	a := alive.NewAlive()
	a.Add(1)
	go reconnectLoop(a, b, con)

	shutdown := func() {
		a.Stop()
		if err := b.Close(); err != nil {
			log.Errorf("close err=%v", err)
		}
		if pub != nil {
			pub.Close()
		}
		a.Wait()
	}

	if err := b.Connect(consoleSession, con); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	sdnotify(daemon.SdNotifyReady)

	if *flagInteractive {
		sh := &shell{b: b, con: con, timeout: 10 * time.Second}
		sh.quit = func() {
			shutdown()
			os.Exit(0)
		}
		err = cli.MainLoop("gclink", sh.exec, sh.completer(), func(os.Signal) { sh.quit() })
		shutdown()
		if err != nil {
			log.Fatal(errors.ErrorStack(err))
		}
		return
	}

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigch
	log.Infof("signal=%s stopping", s)
	sdnotify(daemon.SdNotifyStopping)
	shutdown()
}

func newLog(c *config.Config, underSystemd bool) *log2.Log {
	var w io.Writer = os.Stderr
	if c.Log.File != "" {
		w = &lumberjack.Logger{
			Filename:   c.Log.File,
			MaxSize:    c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			Compress:   true,
		}
	}
	l := log2.NewWriter(w, c.LogLevel())
	if underSystemd && c.Log.File == "" {
		l.SetFlags(log2.LServiceFlags)
	} else {
		l.SetFlags(log2.LInteractiveFlags)
	}
	return l
}

// reconnectLoop reopens link with backoff after errors unless console disconnected on purpose.
func reconnectLoop(a *alive.Alive, b *broker.Broker, con *console) {
	defer a.Done()
	stopch := a.StopChan()
	for {
		select {
		case <-stopch:
			return
		case <-con.kick:
		}
		if !con.backoff.Wait(context.Background(), stopch) {
			return
		}
		if !con.reconnectWanted() {
			continue
		}
		con.backoff.Failure()
		if b.Reopen() {
			log.Infof("link reconnect attempt=%d next delay %s", con.backoff.Attempts(), con.backoff.DelayBefore())
		}
	}
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sdnotify:", errors.ErrorStack(err))
		os.Exit(1)
	}
	return ok
}
