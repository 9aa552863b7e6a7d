package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antoniostano/kirana/internal/app"
	"github.com/antoniostano/kirana/internal/cart"
	"github.com/antoniostano/kirana/internal/chat"
	"github.com/antoniostano/kirana/internal/order"
	"github.com/antoniostano/kirana/internal/session"
)

var (
	chatName    string
	chatAddress string
	chatMode    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Order from the terminal",
	Long: `Starts an in-process session and reads one message per line.

Commands:
  /cart   show the cart
  /pay    place the order with --delivery
  /quit   leave`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		built, err := app.Build(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer built.Cleanup()

		mode, err := order.ParseMode(chatMode)
		if err != nil {
			return err
		}
		return runChat(cmd.Context(), built.Chat, built.Carts, mode, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatName, "name", "", "customer name for placed orders")
	chatCmd.Flags().StringVar(&chatAddress, "address", "", "delivery address for placed orders")
	chatCmd.Flags().StringVar(&chatMode, "delivery", string(order.ModeBatch), "delivery mode for /pay (Batch, Instant)")
}

func runChat(ctx context.Context, svc *chat.Service, carts *cart.Manager, mode order.DeliveryMode, in io.Reader, out io.Writer) error {
	sess, err := svc.StartSession(ctx, session.CreateRequest{
		UserID:          "terminal",
		CustomerName:    chatName,
		CustomerAddress: chatAddress,
	})
	if err != nil {
		return err
	}
	defer func() { _, _ = svc.End(sess.ID) }()

	fmt.Fprintf(out, "Kiyara: %s\n", chat.Greeting)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/cart":
			c, err := carts.Get(ctx, sess.ID)
			if err != nil {
				return err
			}
			printCart(out, c)
			continue
		case "/pay":
			placeOrder(ctx, svc, sess.ID, mode, out)
			continue
		}

		reply, err := svc.Send(ctx, sess.ID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Kiyara: %s\n", reply.Text)
		for _, r := range reply.Rejected {
			fmt.Fprintf(out, "  (skipped %s: %s)\n", r.ItemID, r.Reason)
		}
		if len(reply.Applied) > 0 {
			printCart(out, reply.Cart)
		}
		if reply.CheckoutRequested {
			fmt.Fprintln(out, "  type /pay to place the order")
		}
	}
}

func placeOrder(ctx context.Context, svc *chat.Service, sessionID string, mode order.DeliveryMode, out io.Writer) {
	o, err := svc.Checkout(ctx, sessionID, mode)
	if errors.Is(err, cart.ErrEmptyCart) {
		fmt.Fprintln(out, "Your cart is empty.")
		return
	}
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Order %s placed: ₹%.2f, %s (%s)\n", o.ID, o.Total, o.EstimatedDelivery, o.Status)
}

func printCart(out io.Writer, c cart.Cart) {
	if len(c.Lines) == 0 {
		fmt.Fprintln(out, "  cart: empty")
		return
	}
	for _, l := range c.Lines {
		fmt.Fprintf(out, "  %d × %s (%s)  ₹%.2f\n", l.Quantity, l.Name, l.Unit, l.Total())
	}
	fmt.Fprintf(out, "  total: ₹%.2f\n", c.Total())
}
