package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const chatHelp = "Type a request, /confirm or /reject a pending transfer, or /quit."

func (s *runtimeState) newChatCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive intent conversation with wallet-signed transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d := s.stack()
			pipeline, err := d.Pipeline(ctx)
			if err != nil {
				return err
			}
			_, recorder := d.History()
			chainID := s.settings.DefaultChainID
			address := strings.TrimSpace(user)

			opts := []intent.ConversationOption{intent.WithConversationRecorder(recorder)}
			executor, from, err := d.Wallet(ctx, chainID)
			if err != nil {
				s.logger.Warn("wallet transfers disabled", zap.Error(err))
			} else {
				opts = append(opts, intent.WithTransferExecutor(executor))
				if address == "" {
					address = from
				}
			}
			conv := intent.NewConversation(pipeline, intent.StaticSession(chainID, address), d.Networks(), s.logger, opts...)
			return runChat(ctx, conv, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "Wallet address (defaults to the signing key)")
	return cmd
}

// runChat reads one request per line until EOF or /quit and prints every
// assistant reply along with the latest plan's steps.
func runChat(ctx context.Context, conv *intent.Conversation, in io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(in)
	_, _ = fmt.Fprintln(w, intent.WelcomeMessage)
	_, _ = fmt.Fprintln(w, chatHelp)
	seen := 0
	for {
		_, _ = fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch strings.ToLower(line) {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			_, _ = fmt.Fprintln(w, chatHelp)
			continue
		case "/confirm":
			_, err = conv.ConfirmTransfer(ctx)
		case "/reject":
			_, err = conv.RejectTransfer()
		default:
			_, err = conv.Send(ctx, line)
		}

		messages := conv.Messages()
		replied := false
		for _, msg := range messages[seen:] {
			if msg.Role != intent.RoleAssistant {
				continue
			}
			replied = true
			_, _ = fmt.Fprintln(w, msg.Text)
			for _, option := range msg.Options {
				_, _ = fmt.Fprintf(w, "  - %s\n", option)
			}
		}
		seen = len(messages)
		if err != nil && !replied {
			_, _ = fmt.Fprintf(w, "error: %s\n", chatError(err))
		}
		printSteps(w, conv.Plan().Steps)
		if conv.State() == intent.StateAwaitingWalletSignature {
			_, _ = fmt.Fprintln(w, "Type /confirm to sign the transfer or /reject to cancel.")
		}
	}
}

func printSteps(w io.Writer, steps []intent.Step) {
	for i, step := range steps {
		_, _ = fmt.Fprintf(w, "  %d. [%s] %s", i+1, step.Status, step.Description)
		switch {
		case step.TransactionHash != "":
			_, _ = fmt.Fprintf(w, " (%s)", step.TransactionHash)
		case step.PendingHash != "":
			_, _ = fmt.Fprintf(w, " (pending %s)", step.PendingHash)
		}
		_, _ = fmt.Fprintln(w)
	}
}

func chatError(err error) string {
	if cErr, ok := clierr.As(err); ok {
		return cErr.Message
	}
	return err.Error()
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var token, amount, recipient string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Sign and send a native or token transfer with the local key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wallet.ConfirmationTimeout+s.settings.Timeout)
			defer cancel()
			d := s.stack()
			chainID := s.settings.DefaultChainID
			executor, from, err := d.Wallet(ctx, chainID)
			if err != nil {
				return err
			}
			start := time.Now()
			res, err := executor.Transfer(ctx, wallet.Transfer{
				ChainID:   chainID,
				Token:     token,
				Amount:    amount,
				Recipient: recipient,
				From:      from,
			}, func(hash string) {
				s.logger.Info("transfer submitted", zap.String("hash", hash))
			})
			if err != nil {
				return err
			}

			chain := d.Networks().ChainName(chainID)
			description := fmt.Sprintf("Sent %s %s to %s on %s.", amount, strings.ToUpper(token), res.Recipient, chain)
			_, recorder := d.History()
			recorder.RecordAsync(intent.RecordRequest{
				UserAddress: from,
				Description: description,
				Chain:       chain,
				Type:        intent.TypeTransfer,
				Steps: []intent.Step{{
					Description:     description,
					Chain:           chain,
					TransactionHash: res.Hash,
					Status:          intent.StepComplete,
				}},
			})
			s.logger.Info("transfer confirmed", zap.String("hash", res.Hash), zap.Duration("elapsed", time.Since(start)))
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res, nil)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token symbol (native or listed ERC-20)")
	cmd.Flags().StringVar(&amount, "amount", "", "Decimal amount")
	cmd.Flags().StringVar(&recipient, "to", "", "Recipient address or ENS name")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
