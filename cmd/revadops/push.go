package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/umerfarooqlaghari/RevAdOps-sub000/adminclient"
	"github.com/umerfarooqlaghari/RevAdOps-sub000/content"
)

// sectionDoc is the YAML form of a section edit:
//
//	section: hero
//	fields:
//	  title: {value: "Grow ad revenue", type: text}
//	  banner: {value: /img/hero.png, type: image, metadata: {alt: Dashboard}}
type sectionDoc struct {
	Section string              `yaml:"section"`
	Fields  map[string]fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Value    string         `yaml:"value"`
	Type     string         `yaml:"type"`
	Metadata map[string]any `yaml:"metadata"`
	Order    int            `yaml:"order"`
}

// collectionDoc is the YAML form of an ordered collection; items keep file order.
type collectionDoc struct {
	Collection string              `yaml:"collection"`
	Items      []map[string]string `yaml:"items"`
}

func decodeSection(r io.Reader) (string, content.Fields, error) {
	var doc sectionDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return "", nil, fmt.Errorf("parse section: %w", err)
	}
	if doc.Section == "" {
		return "", nil, errors.New("parse section: section is required")
	}
	fields := make(content.Fields, len(doc.Fields))
	for key, f := range doc.Fields {
		t, err := content.ParseValueType(f.Type)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", key, err)
		}
		fields[key] = content.Field{Value: f.Value, Type: t, Metadata: f.Metadata, Order: f.Order}
	}
	return doc.Section, fields, nil
}

func decodeCollection(r io.Reader) (string, []content.Item, error) {
	var doc collectionDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return "", nil, fmt.Errorf("parse collection: %w", err)
	}
	if doc.Collection == "" {
		return "", nil, errors.New("parse collection: collection is required")
	}
	items := make([]content.Item, len(doc.Items))
	for i, fields := range doc.Items {
		items[i] = content.Item{Order: i + 1, Fields: fields}
	}
	return doc.Collection, items, nil
}

type pushFlags struct {
	server string
	file   string
}

func parsePushFlags(name string, args []string) (pushFlags, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := fs.String("server", envOr("REVADOPS_SERVER", "http://localhost:3000"), "base URL of the server")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return pushFlags{}, fmt.Errorf("usage: revadops %s [-server url] <file.yaml>", name)
	}
	return pushFlags{server: *server, file: fs.Arg(0)}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func adminLogin(ctx context.Context, server string) (*adminclient.Client, error) {
	password := os.Getenv("REVADOPS_ADMIN_PASSWORD")
	if password == "" {
		return nil, errors.New("REVADOPS_ADMIN_PASSWORD is not set")
	}
	c, err := adminclient.New(server)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx, password); err != nil {
		return nil, err
	}
	return c, nil
}

func runPushSection(args []string) error {
	flags, err := parsePushFlags("push-section", args)
	if err != nil {
		return err
	}
	f, err := os.Open(flags.file)
	if err != nil {
		return err
	}
	defer f.Close()
	section, fields, err := decodeSection(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c, err := adminLogin(ctx, flags.server)
	if err != nil {
		return err
	}
	ed, err := c.EditSection(ctx, section)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s, sending every field: %v\n", section, err)
	}
	results, err := ed.Save(ctx, fields)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Printf("%s: no changes\n", section)
		return nil
	}
	failed := 0
	for _, r := range results {
		if r.Success {
			fmt.Printf("updated %s.%s\n", r.Section, r.Key)
			continue
		}
		failed++
		fmt.Printf("FAILED  %s.%s: %s\n", r.Section, r.Key, r.Error)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d fields failed", failed, len(results))
	}
	return nil
}

func runPushCollection(args []string) error {
	flags, err := parsePushFlags("push-collection", args)
	if err != nil {
		return err
	}
	f, err := os.Open(flags.file)
	if err != nil {
		return err
	}
	defer f.Close()
	collection, items, err := decodeCollection(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c, err := adminLogin(ctx, flags.server)
	if err != nil {
		return err
	}
	ed, err := c.EditCollection(ctx, collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s, replacing it: %v\n", collection, err)
	}
	res, sent, err := ed.Save(ctx, items)
	if err != nil {
		return fmt.Errorf("replace %s (still %d items): %w", collection, res.Count, err)
	}
	if !sent {
		fmt.Printf("%s: no changes\n", collection)
		return nil
	}
	fmt.Printf("%s: %d items stored, %d skipped\n", collection, res.Count, res.Skipped)
	return nil
}
