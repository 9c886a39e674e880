package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/PeaPodTechnologies/LabelledSet/messaging"
)

var (
	flags           *flag.FlagSet = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	MessagingConfig string
	AmqpServer      string
	TLSVerify       bool
	TLSCACert       string
	TLSCert         string
	TLSKey          string

	Address   string
	Listen    string
	FoldKeys  bool
	Overwrite bool
	Buckets   int
	Debug     bool
)

func init() {
	flags.Usage = func() {
		fmt.Printf(`Usage of %s:

Commands:
		serve - apply messages from the address to a labelled set and serve
				it over http
		publish - send a message to the address
				publish assign KEY VALUE...
				publish remove VALUE...
				publish drop KEY
		log - log decoded messages to stdout
`, os.Args[0])
		flags.PrintDefaults()
	}
	flags.BoolVar(&Debug, "debug", false, "enable debug logging")
	flags.StringVar(&MessagingConfig, "messaging-config", "", "optional path to a skupper connect.json")
	flags.StringVar(&AmqpServer, "server", "amqp://localhost:5671", "AMQP server to connect to")
	flags.BoolVar(&TLSVerify, "tls-verify", true, "validate server CA")
	flags.StringVar(&TLSCACert, "ca", "", "path to AMQP CA certificate")
	flags.StringVar(&TLSCert, "cert", "", "path to certificate when connecting with amqps")
	flags.StringVar(&TLSKey, "key", "", "path to certificate key when connecting with amqps")

	flags.StringVar(&Address, "address", "mc/labelledset", "AMQP address messages are sent to and received from")
	flags.StringVar(&Listen, "listen", ":9090", "http listen address for serve")
	flags.BoolVar(&FoldKeys, "fold-keys", false, "treat group keys case-insensitively when serving")
	flags.BoolVar(&Overwrite, "overwrite", false, "publish assign messages that overwrite the group and take values from other groups")
	flags.IntVar(&Buckets, "buckets", 0, "number of key index buckets when serving (0 for default)")
}

func main() {
	flags.Parse(os.Args[1:])
	if len(flags.Args()) < 1 {
		fmt.Printf("error: expected command. got %v\n", flags.Args())
		flags.Usage()
		os.Exit(1)
	}

	if Debug {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	connURL := AmqpServer

	var tlsCfg *tls.Config
	if MessagingConfig != "" {
		b, err := os.ReadFile(MessagingConfig)
		if err != nil {
			fmt.Printf("error: could not read messaging-config %s\n", err)
			flags.Usage()
			os.Exit(1)
		}
		var cfg connectJSON
		if err := json.Unmarshal(b, &cfg); err != nil {
			fmt.Printf("error: could not parse messaging-config %s\n", err)
			flags.Usage()
			os.Exit(1)
		}
		if cfg.Tls.CA != "" {
			tlsCfg, err = cfg.Tls.Parse()
			if err != nil {
				fmt.Printf("error: could not parse tls config in messaging-config %s\n", err)
				flags.Usage()
				os.Exit(1)
			}
		}
		connURL = fmt.Sprintf("%s://%s:%s", cfg.Scheme, cfg.Host, cfg.Port)
	}

	if TLSCert != "" {
		var err error
		tlsCfg, err = tlsConfig{
			CA:     TLSCACert,
			Cert:   TLSCert,
			Key:    TLSKey,
			Verify: TLSVerify,
		}.Parse()
		if err != nil {
			fmt.Printf("error: could not parse tls config from tls flags %s\n", err)
			flags.Usage()
			os.Exit(1)
		}
	}

	factory := messaging.NewSessionFactory(connURL, messaging.Config{TLSConfig: tlsCfg})

	var cmdHandler func(context.Context, messaging.SessionFactory, []string) error
	switch name := flags.Arg(0); name {
	case "serve":
		cmdHandler = serve
	case "publish":
		cmdHandler = publish
	case "log":
		cmdHandler = logOnly
	default:
		fmt.Printf("error: unexpected command %s\n", name)
		flags.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := cmdHandler(ctx, factory, flags.Args()[1:]); err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
}

type tlsConfig struct {
	CA     string `json:"ca,omitempty"`
	Cert   string `json:"cert,omitempty"`
	Key    string `json:"key,omitempty"`
	Verify bool   `json:"verify,omitempty"`
}

type connectJSON struct {
	Scheme string    `json:"scheme,omitempty"`
	Host   string    `json:"host,omitempty"`
	Port   string    `json:"port,omitempty"`
	Tls    tlsConfig `json:"tls,omitempty"`
}

func (c tlsConfig) Parse() (*tls.Config, error) {
	var config tls.Config
	config.InsecureSkipVerify = true
	if c.Verify {
		certPool := x509.NewCertPool()
		file, err := os.ReadFile(c.CA)
		if err != nil {
			return nil, err
		}
		certPool.AppendCertsFromPEM(file)
		config.RootCAs = certPool
		config.InsecureSkipVerify = false
	}

	_, errCert := os.Stat(c.Cert)
	_, errKey := os.Stat(c.Key)
	if errCert == nil || errKey == nil {
		tlsCert, err := tls.LoadX509KeyPair(c.Cert, c.Key)
		if err != nil {
			return nil, fmt.Errorf("could not load x509 key pair: %v", err)
		}
		config.Certificates = []tls.Certificate{tlsCert}
	}
	config.MinVersion = tls.VersionTLS12
	return &config, nil
}
