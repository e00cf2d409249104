package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"raisu/pkg/domain"
	"raisu/pkg/icon"
	"raisu/pkg/pipeline"
	"raisu/pkg/schema"
	"raisu/svc/render"
)

type snapshotDoc struct {
	*domain.Snapshot
	Warnings []schema.Warning `json:"warnings"`
}

func writeResult(out, errOut io.Writer, res *pipeline.Result, format string) error {
	switch format {
	case "", "text":
		printWarnings(errOut, res.Warnings)
		return render.New(icon.Default()).Snapshot(out, res.Snapshot)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(document(res))
	case "yaml":
		return writeYAML(out, document(res))
	}
	return errors.Errorf("unknown output format %q", format)
}

func document(res *pipeline.Result) snapshotDoc {
	warns := res.Warnings
	if warns == nil {
		warns = []schema.Warning{}
	}
	return snapshotDoc{Snapshot: res.Snapshot, Warnings: warns}
}

// writeYAML goes through JSON so components keep their wire field names,
// and through a yaml.Node so keys keep their order.
func writeYAML(out io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return errors.Wrap(err, "convert to yaml")
	}
	plain(&node)
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// plain drops the flow and quoting styles inherited from the JSON source.
func plain(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		plain(c)
	}
}

func printWarnings(w io.Writer, warns []schema.Warning) {
	for _, wr := range warns {
		fmt.Fprintf(w, "warning: %s %s: %s\n", wr.Kind, wr.Path, wr.Message)
	}
}
