package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/vigil/pkg/fallback"
	"github.com/Mindburn-Labs/vigil/pkg/mcp"
	"github.com/Mindburn-Labs/vigil/pkg/registry"
)

// registerDemoTools installs the built-in tool set: a spread of
// criticalities and blast radii exercising every gate, plus safe-tool
// fallbacks for the monetary ones.
func registerDemoTools(gateway *mcp.Gateway, router *fallback.Router) error {
	defs := []mcp.ToolDef{
		{
			Name:        "initiate_wire_transfer",
			Description: "Send an outbound wire transfer",
			InputSchema: `{
				"type": "object",
				"required": ["amount", "currency", "destination_iban"],
				"properties": {
					"amount": {"type": "number", "exclusiveMinimum": 0},
					"currency": {"type": "string", "minLength": 3, "maxLength": 3},
					"destination_iban": {"type": "string", "minLength": 15}
				}
			}`,
			Profile: registry.ToolProfile{
				Criticality:  registry.CriticalityHigh,
				BlastRadius:  "monetary",
				Irreversible: true,
				Regulatory:   true,
				RiskTier:     "HIGH",
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{
					"transfer_reference": "WIRE-" + uuid.NewString()[:8],
					"state":              "queued",
				}, nil
			},
		},
		{
			Name:        "issue_invoice_refund",
			Description: "Refund a paid invoice",
			InputSchema: `{
				"type": "object",
				"required": ["invoice_id", "amount"],
				"properties": {
					"invoice_id": {"type": "string"},
					"amount": {"type": "number", "exclusiveMinimum": 0},
					"currency": {"type": "string"}
				}
			}`,
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityMedium,
				BlastRadius: "monetary",
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{
					"refund_id": "RF-" + uuid.NewString()[:8],
					"state":     "queued",
				}, nil
			},
		},
		{
			Name:        "freeze_payment_card",
			Description: "Freeze a payment card immediately",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityMedium,
				BlastRadius: "account",
			},
			Handler: stateHandler("card_frozen"),
		},
		{
			Name:        "unfreeze_payment_card",
			Description: "Unfreeze a previously frozen payment card",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityMedium,
				BlastRadius: "account",
			},
			Handler: stateHandler("card_active"),
		},
		{
			Name:        "create_expedited_shipment",
			Description: "Create an expedited shipment for an order",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityLow,
				BlastRadius: "limited",
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{
					"shipment_id": "SHP-" + uuid.NewString()[:8],
					"state":       "label_created",
				}, nil
			},
		},
		{
			Name:        "cancel_shipment",
			Description: "Cancel a shipment before carrier pickup",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityLow,
				BlastRadius: "limited",
			},
			Handler: stateHandler("shipment_cancelled"),
		},
		{
			Name:        "schedule_clinic_visit",
			Description: "Book a clinic appointment slot",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityMedium,
				BlastRadius: "personal_data",
				Regulatory:  true,
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return map[string]any{
					"appointment_id": "APT-" + uuid.NewString()[:8],
					"state":          "confirmed",
				}, nil
			},
		},
		{
			Name:        "change_subscription_plan",
			Description: "Move a customer to a different subscription plan",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityLow,
				BlastRadius: "billing",
			},
			Handler: stateHandler("plan_changed"),
		},
		{
			Name:        "reset_enterprise_password",
			Description: "Reset an enterprise account password",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityHigh,
				BlastRadius: "account",
				RiskTier:    "HIGH",
			},
			Handler: stateHandler("reset_link_sent"),
		},
		{
			Name:        "publish_feature_flag",
			Description: "Publish a feature flag change to production",
			Profile: registry.ToolProfile{
				Criticality: registry.CriticalityMedium,
				BlastRadius: "production",
			},
			Handler: stateHandler("flag_published"),
		},
	}

	for _, def := range defs {
		if err := gateway.RegisterTool(def); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}

	// Blocked monetary calls degrade into drafts instead of templates.
	router.Register("initiate_wire_transfer", fallback.DraftHandler)
	router.Register("issue_invoice_refund", fallback.DraftHandler)
	return nil
}

func stateHandler(state string) func(ctx context.Context, args map[string]any) (any, error) {
	return func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"state": state}, nil
	}
}
