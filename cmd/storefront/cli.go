package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"VapeShelf/internal/storefront"
	"VapeShelf/pkg/kit"
)

type config struct {
	BaseURL  string        `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	APIKey   string        `env:"API_KEY"`
	Timeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"warn"`
}

const usage = `usage: storefront <command> [flags]

commands:
  list            show products, optionally for one tab (-tab)
  tabs            show category tabs
  add-product     -name -category -price -description -image
  update-product  -id plus any add-product flag
  remove-product  -id
  add-flavor      -product -name -color -nicotine -stock
  remove-flavor   -product -flavor
  set-stock       -product -flavor -stock
`

var errUsage = errors.New("usage")

var commands = map[string]bool{
	"list": true, "tabs": true,
	"add-product": true, "update-product": true, "remove-product": true,
	"add-flavor": true, "remove-flavor": true, "set-stock": true,
}

type app struct {
	store  *storefront.Store
	out    io.Writer
	failed bool
}

// run executes one command and returns the process exit code. Any notice
// raised along the way turns the exit code to 1.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cfg config
	if err := kit.LoadConfig(&cfg); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if len(args) == 0 || !commands[args[0]] {
		fmt.Fprint(stderr, usage)
		return 2
	}

	log := kit.NewLogger("storefront", cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	a := &app{out: stdout}
	notify := storefront.NotifierFunc(func(n storefront.Notice) {
		a.failed = true
		fmt.Fprintf(stderr, "%s: %s\n", n.Title, n.Message)
	})

	transport := storefront.NewTransport(storefront.TransportConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
	a.store = storefront.NewStore(storefront.NewAPI(transport), storefront.Options{
		Notifier:  storefront.Notifiers(notify, storefront.LogNotifier{Log: log}),
		Selection: &storefront.Selection{},
		Metrics:   storefront.NewMetrics(prometheus.NewRegistry()),
		Log:       log,
	})

	if err := a.store.Load(ctx); err != nil {
		return 1
	}

	err := a.dispatch(ctx, args[0], args[1:])
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, usage)
		return 2
	case err != nil:
		log.Debug("command failed", zap.String("command", args[0]), zap.Error(err))
		if !a.failed {
			fmt.Fprintln(stderr, err)
		}
		return 1
	case a.failed:
		return 1
	}
	return 0
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "list":
		return a.list(args)
	case "tabs":
		for _, t := range storefront.Tabs(a.store.Snapshot()) {
			fmt.Fprintln(a.out, t.Label)
		}
		return nil
	case "add-product":
		return a.addProduct(ctx, args)
	case "update-product":
		return a.updateProduct(ctx, args)
	case "remove-product":
		return a.removeProduct(ctx, args)
	case "add-flavor":
		return a.addFlavor(ctx, args)
	case "remove-flavor":
		return a.removeFlavor(ctx, args)
	case "set-stock":
		return a.setStock(ctx, args)
	}
	return errUsage
}

func (a *app) list(args []string) error {
	fs := newFlagSet("list")
	tab := fs.String("tab", storefront.AllTab, "category tab")
	if err := parse(fs, args); err != nil {
		return err
	}

	products := a.store.Snapshot()
	active := storefront.ActiveTab(storefront.Tabs(products), *tab)
	for _, p := range storefront.Filter(products, active) {
		a.printProduct(p)
	}
	return nil
}

type productFlags struct {
	fs    *flag.FlagSet
	id    *string
	name  *string
	cat   *string
	price *float64
	desc  *string
	image *string
}

func newProductFlags(name string, withID bool) productFlags {
	fs := newFlagSet(name)
	pf := productFlags{
		fs:    fs,
		name:  fs.String("name", "", "product name"),
		cat:   fs.String("category", "", "category"),
		price: fs.Float64("price", 0, "price"),
		desc:  fs.String("description", "", "description"),
		image: fs.String("image", "", "image key, e.g. vape-1"),
	}
	if withID {
		pf.id = fs.String("id", "", "product id")
	}
	return pf
}

// fields includes only the flags given on the command line; the rest stay
// nil and go out as null.
func (pf productFlags) fields() storefront.ProductFields {
	var out storefront.ProductFields
	pf.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			out.Name = pf.name
		case "category":
			out.Category = pf.cat
		case "price":
			out.Price = pf.price
		case "description":
			out.Description = pf.desc
		case "image":
			out.ImageKey = pf.image
		}
	})
	return out
}

func (a *app) addProduct(ctx context.Context, args []string) error {
	pf := newProductFlags("add-product", false)
	if err := parse(pf.fs, args); err != nil {
		return err
	}
	p, err := a.store.CreateProduct(ctx, pf.fields())
	if err != nil {
		return err
	}
	a.printProduct(p)
	return nil
}

func (a *app) updateProduct(ctx context.Context, args []string) error {
	pf := newProductFlags("update-product", true)
	if err := parse(pf.fs, args); err != nil {
		return err
	}
	if err := required("-id", *pf.id); err != nil {
		return err
	}
	p, err := a.store.UpdateProduct(ctx, *pf.id, pf.fields())
	if err != nil {
		return err
	}
	a.printProduct(p)
	return nil
}

func (a *app) removeProduct(ctx context.Context, args []string) error {
	fs := newFlagSet("remove-product")
	id := fs.String("id", "", "product id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("-id", *id); err != nil {
		return err
	}
	if a.store.RemoveProduct(ctx, *id) {
		fmt.Fprintf(a.out, "removed %s\n", *id)
	}
	return nil
}

func (a *app) addFlavor(ctx context.Context, args []string) error {
	fs := newFlagSet("add-flavor")
	productID := fs.String("product", "", "product id")
	var in storefront.FlavorInput
	fs.StringVar(&in.Name, "name", "", "flavor name")
	fs.StringVar(&in.Color, "color", "", "hex colour")
	fs.StringVar(&in.Nicotine, "nicotine", "", "nicotine strength, e.g. 20mg")
	fs.StringVar(&in.Stock, "stock", "", "starting stock")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("-product", *productID); err != nil {
		return err
	}
	if f, ok := a.store.AddFlavorToProduct(ctx, *productID, in); ok {
		printFlavor(a.out, f)
	}
	return nil
}

func (a *app) removeFlavor(ctx context.Context, args []string) error {
	fs := newFlagSet("remove-flavor")
	productID := fs.String("product", "", "product id")
	flavorID := fs.String("flavor", "", "flavor id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("-product", *productID); err != nil {
		return err
	}
	if err := required("-flavor", *flavorID); err != nil {
		return err
	}
	if a.store.RemoveFlavor(ctx, *productID, *flavorID) {
		fmt.Fprintf(a.out, "removed %s\n", *flavorID)
	}
	return nil
}

func (a *app) setStock(ctx context.Context, args []string) error {
	fs := newFlagSet("set-stock")
	productID := fs.String("product", "", "product id")
	flavorID := fs.String("flavor", "", "flavor id")
	stock := fs.Int("stock", 0, "new stock")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required("-product", *productID); err != nil {
		return err
	}
	if err := required("-flavor", *flavorID); err != nil {
		return err
	}
	if !a.store.SetFlavorStock(ctx, *productID, *flavorID, *stock) {
		return nil
	}
	if p, ok := a.store.Product(*productID); ok {
		for _, f := range p.Flavors {
			if f.ID == *flavorID {
				printFlavor(a.out, f)
			}
		}
	}
	return nil
}

func (a *app) printProduct(p storefront.Product) {
	low := ""
	if storefront.IsLowStock(p) {
		low = "  [low stock]"
	}
	fmt.Fprintf(a.out, "%s  %s  (%s)  $%.2f%s\n", p.ID, p.Name, p.Category, p.Price, low)
	for _, f := range p.Flavors {
		fmt.Fprint(a.out, "    ")
		printFlavor(a.out, f)
	}
}

func printFlavor(w io.Writer, f storefront.Flavor) {
	parts := []string{f.ID, f.Name, f.Color}
	if f.Nicotine != "" {
		parts = append(parts, f.Nicotine)
	}
	parts = append(parts, storefront.StockLabel(f.Stock))
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func required(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
