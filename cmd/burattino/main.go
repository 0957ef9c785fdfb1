package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/burattino/pkg/chat"
	"github.com/go-go-golems/burattino/pkg/conversation"
	"github.com/go-go-golems/burattino/pkg/events"
	"github.com/go-go-golems/burattino/pkg/helpers"
)

const updateTopic = "chat"

var rootCmd = &cobra.Command{
	Use:   "burattino",
	Short: "Stream and reconstruct chat generations from a backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			return err
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
		return nil
	},
}

type app struct {
	service *chat.Service
	store   *conversation.Store
	router  *events.EventRouter
}

func newApp() (*app, error) {
	backend := chat.NewHTTPBackend(viper.GetString("base-url"))
	store := conversation.NewStore()

	router, err := events.NewEventRouter()
	if err != nil {
		return nil, err
	}

	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher(updateTopic, helpers.CorrelationPublisherDecorator{Publisher: router.Publisher})

	controller := chat.NewController(backend, store, publisher,
		chat.WithUpdateInterval(viper.GetDuration("update-interval")),
	)

	return &app{
		service: chat.NewService(backend, store, controller),
		store:   store,
		router:  router,
	}, nil
}

func main() {
	rootCmd.PersistentFlags().String("base-url", "http://localhost:8000", "Backend base URL")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Duration("update-interval", 50*time.Millisecond, "Coalescing interval for streamed updates")
	rootCmd.PersistentFlags().String("model", "", "Model id to generate with")

	cobra.CheckErr(viper.BindPFlags(rootCmd.PersistentFlags()))
	viper.SetEnvPrefix("BURATTINO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(chatsCmd, sendCmd, continueCmd, retryCmd, editCmd, siblingsCmd)

	cobra.CheckErr(rootCmd.Execute())
}
