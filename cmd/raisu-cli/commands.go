package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"raisu/pkg/envelope"
	"raisu/pkg/pipeline"
	"raisu/pkg/schema"
	"raisu/pkg/shortcode"
	"raisu/pkg/wire"
	"raisu/svc/fetch"
	"raisu/svc/util"
)

var formatFlag = &cli.StringFlag{
	Name:    "format",
	Aliases: []string{"f"},
	Value:   string(wire.Msgpack),
	Usage:   "Wire format inside the envelope (msgpack, cbor)",
}

var outputFlag = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Value:   "text",
	Usage:   "Output format (text, json, yaml)",
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Encode and inspect shortcodes",
		Subcommands: []*cli.Command{
			{
				Name:  "encode",
				Usage: "Pack a provider, paste key and AES key into a shortcode",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "provider", Aliases: []string{"p"}, Usage: "Provider id (0 pastes.dev, 1 hastebin, 2 self)"},
					&cli.StringFlag{Name: "paste-key", Aliases: []string{"k"}, Required: true, Usage: "Key of the paste at the provider"},
					&cli.StringFlag{Name: "aes-key", Required: true, Usage: "Hex encoded 16 byte AES key"},
				},
				Action: tokenEncode,
			},
			{
				Name:      "decode",
				Usage:     "Show what a shortcode points at",
				ArgsUsage: "CODE",
				Action:    tokenDecode,
			},
		},
	}
}

func providerFlag(c *cli.Context) (uint8, error) {
	provider := c.Uint("provider")
	if provider > 255 {
		return 0, errors.New("provider id must fit in a byte")
	}
	return uint8(provider), nil
}

func tokenEncode(c *cli.Context) error {
	provider, err := providerFlag(c)
	if err != nil {
		return err
	}
	key, err := hex.DecodeString(c.String("aes-key"))
	if err != nil {
		return errors.Wrap(err, "aes-key")
	}
	code, err := shortcode.Encode(provider, c.String("paste-key"), key)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, code)
	return nil
}

func tokenDecode(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: raisu-cli token decode CODE")
	}
	tok, err := shortcode.Decode(c.Args().First())
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "provider:  %d (%s)\n", tok.ProviderID, providerName(tok.ProviderID))
	fmt.Fprintf(w, "paste key: %s\n", tok.PasteKey)
	fmt.Fprintf(w, "aes key:   %s\n", hex.EncodeToString(tok.SymmetricKey[:]))
	return nil
}

func providerName(id uint8) string {
	switch id {
	case fetch.ProviderPastesDev:
		return "pastes.dev"
	case fetch.ProviderHastebin:
		return "hastebin"
	case fetch.ProviderSelf:
		return "self"
	}
	return "unknown"
}

func sealCommand() *cli.Command {
	return &cli.Command{
		Name:      "seal",
		Usage:     "Encode a JSON snapshot and seal it into an envelope",
		ArgsUsage: "FILE (- for stdin)",
		Flags: []cli.Flag{
			formatFlag,
			&cli.UintFlag{Name: "provider", Aliases: []string{"p"}, Usage: "Provider id for the printed shortcode"},
			&cli.StringFlag{Name: "paste-key", Aliases: []string{"k"}, Usage: "Print a shortcode for this paste key"},
		},
		Action: func(c *cli.Context) error {
			provider, err := providerFlag(c)
			if err != nil {
				return err
			}
			env, key, err := sealFile(c)
			if err != nil {
				return err
			}
			defer util.Wipe(key)
			fmt.Fprintln(c.App.Writer, env)
			fmt.Fprintf(c.App.ErrWriter, "aes key: %s\n", hex.EncodeToString(key))
			if pk := c.String("paste-key"); pk != "" {
				code, err := shortcode.Encode(provider, pk, key)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.ErrWriter, "shortcode: %s\n", code)
			}
			return nil
		},
	}
}

// sealFile reads the JSON snapshot named by the first argument, checks that
// it maps, and seals it under a fresh key.
func sealFile(c *cli.Context) (string, []byte, error) {
	if c.NArg() != 1 {
		return "", nil, errors.New("expected exactly one FILE argument")
	}
	codec, err := wire.ParseCodec(c.String("format"))
	if err != nil {
		return "", nil, err
	}
	raw, err := readInput(c.Args().First())
	if err != nil {
		return "", nil, err
	}
	doc, err := wire.FromJSON(bytes.NewReader(raw), 0)
	if err != nil {
		return "", nil, errors.Wrap(err, "parse snapshot")
	}
	_, warns, err := schema.Map(doc)
	if err != nil {
		return "", nil, errors.Wrap(err, "snapshot does not match the schema")
	}
	printWarnings(c.App.ErrWriter, warns)
	payload, err := wire.Encode(doc, codec)
	if err != nil {
		return "", nil, errors.Wrap(err, "encode snapshot")
	}
	key, err := envelope.NewKey()
	if err != nil {
		return "", nil, err
	}
	env, err := envelope.Seal(payload, key)
	if err != nil {
		util.Wipe(key)
		return "", nil, err
	}
	return env, key, nil
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Decrypt and show an envelope held locally",
		ArgsUsage: "FILE (- for stdin)",
		Flags: []cli.Flag{
			formatFlag,
			outputFlag,
			&cli.StringFlag{Name: "aes-key", Required: true, Usage: "Hex encoded 16 byte AES key"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one FILE argument")
			}
			codec, err := wire.ParseCodec(c.String("format"))
			if err != nil {
				return err
			}
			key, err := hex.DecodeString(c.String("aes-key"))
			if err != nil {
				return errors.Wrap(err, "aes-key")
			}
			defer util.Wipe(key)
			raw, err := readInput(c.Args().First())
			if err != nil {
				return err
			}
			res, err := pipeline.New(nil, pipeline.Options{Codec: codec}).Open(string(raw), key)
			if err != nil {
				return err
			}
			return writeResult(c.App.Writer, c.App.ErrWriter, res, c.String("output"))
		},
	}
}

func viewCommand() *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "Fetch, decrypt and show the snapshot behind a shortcode",
		ArgsUsage: "CODE",
		Flags: []cli.Flag{
			formatFlag,
			outputFlag,
			&cli.StringFlag{Name: "pastes-dev-url", Value: "https://api.pastes.dev", EnvVars: []string{"PASTES_DEV_URL"}},
			&cli.StringFlag{Name: "hastebin-url", Value: "https://hastebin.com/raw", EnvVars: []string{"HASTEBIN_URL"}},
			&cli.StringFlag{Name: "server", Usage: "Base URL of a raisu server for self-hosted pastes", EnvVars: []string{"RAISU_SERVER"}},
			&cli.DurationFlag{Name: "timeout", Value: 15 * time.Second},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("usage: raisu-cli view CODE")
			}
			codec, err := wire.ParseCodec(c.String("format"))
			if err != nil {
				return err
			}
			f := fetch.NewHTTP(fetch.Config{
				PastesDevURL: c.String("pastes-dev-url"),
				HastebinURL:  c.String("hastebin-url"),
				SelfURL:      c.String("server"),
				Timeout:      c.Duration("timeout"),
			})
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			res, err := pipeline.New(f, pipeline.Options{Codec: codec}).Load(ctx, c.Args().First())
			if err != nil {
				return err
			}
			return writeResult(c.App.Writer, c.App.ErrWriter, res, c.String("output"))
		},
	}
}

type publishResp struct {
	ID            string    `json:"id"`
	DeletionToken string    `json:"deletion_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Seal a JSON snapshot and upload it to a raisu server",
		ArgsUsage: "FILE (- for stdin)",
		Flags: []cli.Flag{
			formatFlag,
			&cli.StringFlag{Name: "server", Required: true, Usage: "Base URL of the raisu server", EnvVars: []string{"RAISU_SERVER"}},
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Usage: "Paste lifetime; zero uses the server default"},
			&cli.DurationFlag{Name: "timeout", Value: 15 * time.Second},
		},
		Action: publish,
	}
}

func publish(c *cli.Context) error {
	env, key, err := sealFile(c)
	if err != nil {
		return err
	}
	defer util.Wipe(key)

	body := map[string]string{"content": env}
	if d := c.Duration("duration"); d > 0 {
		body["duration"] = d.String()
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	base := strings.TrimRight(c.String("server"), "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/pastes", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "upload")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("upload failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var created publishResp
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return errors.Wrap(err, "decode upload response")
	}
	code, err := shortcode.Encode(fetch.ProviderSelf, created.ID, key)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "shortcode:      %s\n", code)
	fmt.Fprintf(w, "paste id:       %s\n", created.ID)
	fmt.Fprintf(w, "deletion token: %s\n", created.DeletionToken)
	fmt.Fprintf(w, "expires at:     %s\n", created.ExpiresAt.Format(time.RFC3339))
	return nil
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	b, err := os.ReadFile(name)
	return b, errors.Wrapf(err, "read %s", name)
}
