package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/gops/agent"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/mxmodel/mxmodel/config"
	"github.com/mxmodel/mxmodel/model"
	"github.com/mxmodel/mxmodel/recents"
	"github.com/mxmodel/mxmodel/session"
	"github.com/mxmodel/mxmodel/session/matrix"
)

var (
	version = "0.1.0"
	logger  *logrus.Entry
)

func main() {
	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 14,
		FullTimestamp: true,
	})
	logger = ourlog.WithFields(logrus.Fields{"prefix": "main"})

	flagConfig := flag.String("conf", "mxmodel.toml", "config file")
	flagDebug := flag.Bool("debug", false, "enable debug logging")
	flagVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *flagVersion {
		fmt.Printf("version: %s\n", version)
		return
	}

	v, err := config.LoadConfig(*flagConfig)
	if err != nil {
		logger.Fatal(err)
	}

	if *flagDebug || v.GetBool("debug") {
		logger.Info("enabling debug")
		ourlog.SetLevel(logrus.DebugLevel)
	}

	if v.GetBool("trace") {
		logger.Info("enabling trace")
		ourlog.SetLevel(logrus.TraceLevel)
	}

	if v.GetBool("gops") {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.Errorf("gops: %v", err)
		}
		defer agent.Close()
	}

	model.SetLogger(ourlog.WithFields(logrus.Fields{"prefix": "model"}))

	cred := session.Credentials{
		Server: v.GetString("matrix.server"),
		Login:  v.GetString("matrix.login"),
		Pass:   v.GetString("matrix.password"),
	}

	sess, err := matrix.New(v, cred)
	if err != nil {
		logger.Fatalf("login failed: %v", err)
	}

	store := model.NewStore(sess)

	live := make(chan *model.TimelineEvent, 1000)
	store.Subscribe(live)

	me := sess.UserID()
	tracker := recents.NewTracker(func(tl *model.TimelineEvent) bool {
		return mentionsUser(tl, me)
	})
	tracker.SetTitleFunc(func(count int) {
		logger.Debugf("%d unread messages", count)
	})

	go func() {
		for tl := range live {
			tracker.HandleEvent(tl)
			logLiveEvent(store, tl)
		}
	}()

	sess.Start(store)
	logger.Infof("mxmodel %s running as %s", version, me)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := sess.Logout(); err != nil {
		logger.Errorf("logout: %v", err)
	}
}

func mentionsUser(tl *model.TimelineEvent, userID id.UserID) bool {
	msg, ok := tl.Event.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return false
	}
	return strings.Contains(msg.Body, string(userID))
}

func logLiveEvent(store *model.Store, tl *model.TimelineEvent) {
	sender := string(tl.Event.Sender)
	if tl.Sender != nil {
		sender = tl.Sender.Name
	}
	room := store.GetRoom(tl.Event.RoomID)
	logger.Infof("[%s] <%s> %s", room.Name(), sender, tl.Event.Type.String())
}
