// Command terminal is a line-oriented register client: it logs a cashier in,
// loads the product catalog once and then drives a single cart through add,
// quantity, discount and checkout commands until the sale is submitted.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"salepoint/internal/cart"
	"salepoint/internal/catalog"
	"salepoint/internal/saleclient"
	"salepoint/internal/salesfilter"
)

func main() {
	baseURL := flag.String("server", "http://localhost:8080", "register backend base URL")
	username := flag.String("user", "cashier", "cashier username")
	flag.Parse()

	password := os.Getenv("TERMINAL_PASSWORD")
	if password == "" {
		log.Fatal("TERMINAL_PASSWORD must be set")
	}

	client, err := saleclient.New(*baseURL, 10*time.Second)
	if err != nil {
		log.Fatalf("bad server URL: %v", err)
	}

	ctx := context.Background()
	if err := client.Login(ctx, *username, password); err != nil {
		log.Fatalf("login failed: %v", err)
	}
	if err := client.RefreshCSRFToken(ctx); err != nil {
		log.Fatalf("csrf token fetch failed: %v", err)
	}
	products, err := client.FetchProducts(ctx)
	if err != nil {
		log.Fatalf("catalog load failed: %v", err)
	}

	term := &terminal{
		client:  client,
		catalog: catalog.Load(products),
		cart:    cart.New(),
		out:     os.Stdout,
	}
	fmt.Fprintf(term.out, "%d products loaded. Type 'help' for commands.\n", term.catalog.Len())
	term.run(bufio.NewScanner(os.Stdin))
}

type terminal struct {
	client  *saleclient.Client
	catalog *catalog.Catalog
	cart    *cart.Cart
	out     *os.File
}

func (t *terminal) run(scanner *bufio.Scanner) {
	fmt.Fprint(t.out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			if quit := t.dispatch(line); quit {
				return
			}
		}
		fmt.Fprint(t.out, "> ")
	}
}

func (t *terminal) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		t.printHelp()
	case "find":
		t.cmdFind(strings.Join(args, " "))
	case "add":
		t.cmdAdd(args)
	case "qty":
		t.cmdQty(args)
	case "rm":
		t.cmdRemove(args)
	case "clear":
		if t.cart.Clear() {
			fmt.Fprintln(t.out, "cart cleared")
		}
	case "discount":
		t.cmdDiscount(args)
	case "cart":
		t.printCart()
	case "checkout":
		t.cmdCheckout()
	case "cancel":
		t.cart.CloseCheckout()
		fmt.Fprintln(t.out, "checkout cancelled")
	case "sales":
		t.cmdSales(args)
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(t.out, "unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (t *terminal) printHelp() {
	fmt.Fprintln(t.out, `commands:
  find <text>            search the catalog by name or barcode
  add <product-id>       add one unit to the cart
  qty <product-id> <n>   set a line's quantity (0 removes it)
  rm <product-id>        remove a line
  clear                  empty the cart
  discount <value> [%]   set a fixed or percentage discount
  cart                   show the cart and totals
  checkout               confirm customer, payment and submit
  cancel                 abandon an open checkout
  sales [search] [from] [to]   list past sales
  quit                   leave`)
}

func (t *terminal) cmdFind(query string) {
	matches := t.catalog.Filter(query, "")
	if len(matches) == 0 {
		fmt.Fprintln(t.out, "no products match")
		return
	}
	for _, p := range matches {
		fmt.Fprintf(t.out, "  %-16s %-24s %s  stock %d\n", p.ID, p.Name, formatCents(p.PriceCents), p.StockQty)
	}
}

func (t *terminal) cmdAdd(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(t.out, "usage: add <product-id>")
		return
	}
	product, ok := t.catalog.Get(args[0])
	if !ok {
		fmt.Fprintf(t.out, "no product with id %q\n", args[0])
		return
	}
	if err := t.cart.AddItem(product.ID, product.Name, product.PriceCents, product.StockQty); err != nil {
		fmt.Fprintln(t.out, err)
		return
	}
	fmt.Fprintf(t.out, "added %s, %d items in cart\n", product.Name, t.cart.ItemCount())
}

func (t *terminal) cmdQty(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(t.out, "usage: qty <product-id> <n>")
		return
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(t.out, "quantity must be a number")
		return
	}
	if err := t.cart.SetQuantity(args[0], n); err != nil {
		fmt.Fprintln(t.out, err)
	}
}

func (t *terminal) cmdRemove(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(t.out, "usage: rm <product-id>")
		return
	}
	t.cart.RemoveItem(args[0])
}

func (t *terminal) cmdDiscount(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(t.out, "usage: discount <value> [%]")
		return
	}
	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintln(t.out, "discount must be a number")
		return
	}
	mode := cart.DiscountFixed
	if len(args) > 1 && args[1] == "%" {
		mode = cart.DiscountPercent
	}
	t.cart.SetDiscount(value, mode)
	t.printCart()
}

func (t *terminal) printCart() {
	lines := t.cart.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(t.out, "cart is empty")
		return
	}
	for _, line := range lines {
		fmt.Fprintf(t.out, "  %-16s %-24s x%-3d %s\n", line.ProductID, line.Name, line.Quantity, formatCents(line.UnitPriceCents*int64(line.Quantity)))
	}
	s := t.cart.Summary()
	fmt.Fprintf(t.out, "  subtotal %s  discount %s  total %s\n", formatCents(s.SubtotalCents), formatCents(s.DiscountCents), formatCents(s.TotalCents))
}

func (t *terminal) cmdCheckout() {
	co, err := t.cart.OpenCheckout()
	if err != nil {
		fmt.Fprintln(t.out, err)
		return
	}
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprintf(t.out, "total due %s for %d items\n", formatCents(co.Summary.TotalCents), co.ItemCount)
	co.CustomerName = prompt(reader, t.out, "customer name (optional): ")
	co.CustomerPhone = prompt(reader, t.out, "customer phone (optional): ")
	if method := prompt(reader, t.out, "payment method [cash/card/digital] (cash): "); method != "" {
		co.PaymentMethod = method
	}

	if co.PaymentMethod == "cash" {
		for {
			raw := prompt(reader, t.out, "amount tendered: ")
			tendered, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				fmt.Fprintln(t.out, "enter an amount")
				continue
			}
			change, err := t.cart.SetAmountTendered(int64(tendered * 100))
			if errors.Is(err, cart.ErrInsufficientPayment) {
				fmt.Fprintln(t.out, "not enough, total is", formatCents(co.Summary.TotalCents))
				continue
			}
			if err != nil {
				fmt.Fprintln(t.out, err)
				return
			}
			fmt.Fprintf(t.out, "change due %s\n", formatCents(change))
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	result, err := t.cart.Submit(ctx, t.client)
	if err != nil {
		fmt.Fprintf(t.out, "sale not completed: %v\n", err)
		return
	}
	fmt.Fprintf(t.out, "sale complete: %s charged %s (id %s)\n", result.InvoiceNumber, formatCents(result.FinalCents), result.SaleID)
}

// cmdSales builds the list URL the same way the sales page does, then fetches
// it: positional args are search text, from date and to date.
func (t *terminal) cmdSales(args []string) {
	u := &url.URL{}
	if len(args) > 0 {
		salesfilter.ApplySearch(u, args[0])
	}
	var from, to string
	if len(args) > 1 {
		from = args[1]
	}
	if len(args) > 2 {
		to = args[2]
	}
	if err := salesfilter.ApplyDateRange(u, from, to); err != nil {
		fmt.Fprintln(t.out, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := t.client.FetchSales(ctx, u.RawQuery)
	if err != nil {
		fmt.Fprintln(t.out, err)
		return
	}
	for _, sale := range result.Sales {
		fmt.Fprintf(t.out, "  %s  %s  %-8s %s  %s\n",
			sale.InvoiceNumber, sale.CreatedAt.Format("2006-01-02 15:04"), sale.PaymentMethod, formatCents(sale.FinalCents), sale.CustomerName)
	}
	fmt.Fprintf(t.out, "page %d of %d, %d sales\n", result.Page, result.PageCount, result.TotalSales)
}

func prompt(reader *bufio.Reader, out *os.File, label string) string {
	fmt.Fprint(out, label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
