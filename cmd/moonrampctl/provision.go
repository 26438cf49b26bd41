package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/moonramp/moonramp/internal/authtoken"
	"github.com/moonramp/moonramp/internal/model"
)

func createMerchantCmd() *cobra.Command {
	var id, name, contact string
	cmd := &cobra.Command{
		Use:   "create-merchant",
		Short: "provision a new merchant row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if id == "" {
				id = uuid.NewString()
			}
			st, ctx, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			merchant := model.Merchant{
				ID:        id,
				Name:      name,
				Contact:   contact,
				CreatedAt: time.Now(),
			}
			if err := st.InsertMerchant(ctx, merchant); err != nil {
				return err
			}
			fmt.Println(merchant.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "merchant id (generated if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "merchant name")
	cmd.Flags().StringVar(&contact, "contact", "", "merchant contact")
	return cmd
}

// scopesByRole mirrors the scope sets spec §6's method table assigns per
// role, so a provisioned token only carries what its role needs.
var scopesByRole = map[string][]authtoken.Scope{
	"admin": {
		authtoken.ProgramRead, authtoken.ProgramWrite,
		authtoken.WalletRead, authtoken.WalletWrite,
		authtoken.SaleRead, authtoken.SaleWrite,
	},
	"merchant": {
		authtoken.ProgramRead,
		authtoken.WalletRead, authtoken.WalletWrite,
		authtoken.SaleRead, authtoken.SaleWrite,
	},
	"readonly": {
		authtoken.ProgramRead, authtoken.WalletRead, authtoken.SaleRead,
	},
}

func createAPITokenCmd() *cobra.Command {
	var merchantID, role string
	cmd := &cobra.Command{
		Use:   "create-api-token",
		Short: "mint a bearer token for a merchant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if merchantID == "" {
				return fmt.Errorf("--merchant is required")
			}
			scopes, ok := scopesByRole[strings.ToLower(role)]
			if !ok {
				return fmt.Errorf("unknown role %q (want admin, merchant, or readonly)", role)
			}

			st, ctx, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			plaintext, rec, err := authtoken.Issue(merchantID, role, scopes, uuid.NewString())
			if err != nil {
				return err
			}
			if err := st.InsertAPIToken(ctx, rec); err != nil {
				return err
			}
			fmt.Println(plaintext)
			return nil
		},
	}
	cmd.Flags().StringVar(&merchantID, "merchant", "", "merchant id the token is scoped to")
	cmd.Flags().StringVar(&role, "role", "merchant", "role: admin, merchant, or readonly")
	return cmd
}
