package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"farm-ledger/internal/app"
	"farm-ledger/internal/core"
)

// Usage lists the one-shot commands handled by Run.
const Usage = `Available: debtors, ledger <customer_id> [from] [to], logs [product_id], verify-stock,
           adjust-stock <product_id> <qty> [reason], cancel-sale <sale_id>, sale <sale_id>`

// ErrUsage is returned for an unknown command or missing arguments.
var ErrUsage = errors.New("usage")

// Run executes a one-shot CLI command, writing its report to out.
// args[0] is the subcommand name; actor is recorded on mutating commands.
func Run(ctx context.Context, svc app.ApplicationService, actor string, out io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given\n%s", ErrUsage, Usage)
	}

	switch args[0] {
	case "debtors", "debt":
		report, err := svc.GetCustomersWithDebt(ctx)
		if err != nil {
			return fmt.Errorf("failed to list debtors: %w", err)
		}
		printDebtors(out, report)

	case "ledger":
		if len(args) < 2 {
			return fmt.Errorf("%w: ledger <customer_id> [from] [to]", ErrUsage)
		}
		var from, to string
		if len(args) > 2 {
			from = args[2]
		}
		if len(args) > 3 {
			to = args[3]
		}
		result, err := svc.GetCustomerLedger(ctx, args[1], from, to)
		if err != nil {
			return fmt.Errorf("failed to load ledger: %w", err)
		}
		printLedger(out, result)

	case "logs":
		filter := core.LogFilter{Limit: 50}
		if len(args) > 1 {
			id, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: product id must be a number, got %q", ErrUsage, args[1])
			}
			filter.ProductID = id
		}
		result, err := svc.GetInventoryLogs(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to load inventory logs: %w", err)
		}
		printLogs(out, result)

	case "verify-stock", "verify":
		result, err := svc.VerifyStock(ctx)
		if err != nil {
			return fmt.Errorf("failed to verify stock: %w", err)
		}
		printVerification(out, result)
		if !result.Consistent {
			return fmt.Errorf("%d product(s) drifted from the inventory log", len(result.Drifts))
		}

	case "adjust-stock", "adjust":
		if len(args) < 3 {
			return fmt.Errorf("%w: adjust-stock <product_id> <qty> [reason]", ErrUsage)
		}
		productID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%w: product id must be a number, got %q", ErrUsage, args[1])
		}
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: quantity must be a number, got %q", ErrUsage, args[2])
		}
		var reason string
		if len(args) > 3 {
			reason = args[3]
		}
		l, err := svc.AdjustStock(ctx, app.AdjustStockRequest{
			Actor:          actor,
			ProductID:      productID,
			ChangeQty:      qty,
			Memo:           "CLI 재고 조정",
			ReasonCategory: reason,
		})
		if err != nil {
			return fmt.Errorf("adjustment failed: %w", err)
		}
		fmt.Fprintf(out, "Product %d: %+d (%s), stock now %d.\n", l.ProductID, l.ChangeQuantity, l.ChangeType, l.CurrentStock)

	case "cancel-sale":
		if len(args) < 2 {
			return fmt.Errorf("%w: cancel-sale <sale_id>", ErrUsage)
		}
		if err := svc.CancelSale(ctx, actor, args[1]); err != nil {
			return fmt.Errorf("cancel failed: %w", err)
		}
		fmt.Fprintf(out, "Sale %s cancelled.\n", args[1])

	case "sale":
		if len(args) < 2 {
			return fmt.Errorf("%w: sale <sale_id>", ErrUsage)
		}
		result, err := svc.GetSale(ctx, args[1])
		if err != nil {
			return fmt.Errorf("failed to load sale: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Sale)

	default:
		return fmt.Errorf("%w: unknown command %s\n%s", ErrUsage, args[0], Usage)
	}
	return nil
}

func printDebtors(out io.Writer, report *app.DebtorReport) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  %-58s\n", "CUSTOMERS WITH OUTSTANDING BALANCE")
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  %-12s %-30s %15s\n", "ID", "NAME", "BALANCE")
	fmt.Fprintln(out, strings.Repeat("-", 62))
	for _, c := range report.Customers {
		fmt.Fprintf(out, "  %-12s %-30s %15d\n", c.ID, c.Name, c.CurrentBalance)
	}
	fmt.Fprintln(out, strings.Repeat("-", 62))
	fmt.Fprintf(out, "  %-43s %15d\n", "TOTAL", report.TotalOutstanding)
	fmt.Fprintln(out, strings.Repeat("=", 62))
}

func printLedger(out io.Writer, result *app.CustomerLedgerResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintf(out, "  LEDGER   : %s (%s)\n", result.Customer.Name, result.Customer.ID)
	fmt.Fprintf(out, "  BALANCE  : %d\n", result.Customer.CurrentBalance)
	fmt.Fprintln(out, strings.Repeat("=", 78))
	fmt.Fprintf(out, "  %-10s %-10s %12s %12s  %s\n", "DATE", "TYPE", "AMOUNT", "RUNNING", "DESCRIPTION")
	fmt.Fprintln(out, strings.Repeat("-", 78))
	for _, e := range result.Entries {
		fmt.Fprintf(out, "  %-10s %-10s %12d %12d  %s\n",
			e.TransactionDate, e.TransactionType, e.Amount, e.RunningBalance, e.Description)
	}
	fmt.Fprintln(out, strings.Repeat("=", 78))
}

func printLogs(out io.Writer, result *app.InventoryLogResult) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %-8s %-20s %-6s %8s %8s  %-14s %s\n", "LOG", "PRODUCT", "TYPE", "CHANGE", "STOCK", "REFERENCE", "BY")
	fmt.Fprintln(out, strings.Repeat("-", 86))
	for _, l := range result.Logs {
		change := strconv.Itoa(l.ChangeQuantity)
		if !l.AffectsStock {
			change = "(" + change + ")"
		}
		fmt.Fprintf(out, "  %-8d %-20s %-6s %8s %8d  %-14s %s\n",
			l.ID, l.ProductName, l.ChangeType, change, l.CurrentStock, l.ReferenceID, l.CreatedBy)
	}
}

func printVerification(out io.Writer, result *app.StockVerification) {
	if result.Consistent {
		fmt.Fprintln(out, "Stock is consistent with the inventory log.")
		return
	}
	fmt.Fprintf(out, "  %-8s %-24s %10s %10s\n", "PRODUCT", "NAME", "STOCK", "LOGGED")
	fmt.Fprintln(out, strings.Repeat("-", 56))
	for _, d := range result.Drifts {
		fmt.Fprintf(out, "  %-8d %-24s %10d %10d\n", d.ProductID, d.ProductName, d.StockQuantity, d.LoggedTotal)
	}
}
