package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docflow/internal/review"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the review queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClaimCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))
	queueCmd.AddCommand(newQueueAssignCommand(ctx))
	queueCmd.AddCommand(newQueueApproveCommand(ctx))
	queueCmd.AddCommand(newQueueCorrectCommand(ctx))
	queueCmd.AddCommand(newQueueRejectCommand(ctx))
	queueCmd.AddCommand(newQueueAuditCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueWorkloadCommand(ctx))
	queueCmd.AddCommand(newQueueReleaseExpiredCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var assignee string
	var sortBy string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []review.Status
			for _, raw := range listStatuses {
				status, ok := review.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}
			sortKey, err := parseSortKey(sortBy)
			if err != nil {
				return err
			}

			return ctx.withStore(func(store *review.Store) error {
				items, err := store.List(cmd.Context(), review.ListOptions{
					Statuses:   statuses,
					AssignedTo: assignee,
					SortBy:     sortKey,
					Limit:      limit,
					Offset:     offset,
				})
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Review queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Document", "Status", "Priority", "Assignee", "SLA Deadline", "Created"},
					buildQueueListRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by item status (repeatable)")
	cmd.Flags().StringVarP(&assignee, "assignee", "a", "", "Filter by assigned reviewer")
	cmd.Flags().StringVar(&sortBy, "sort", "priority", "Sort order: priority, deadline, or created")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of items to skip")
	return cmd
}

func parseSortKey(value string) (review.SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "priority":
		return review.SortByPriority, nil
	case "deadline":
		return review.SortByDeadline, nil
	case "created":
		return review.SortByCreated, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (use priority, deadline, or created)", value)
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one item with its extracted fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				item, err := store.GetItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Item:         %s\n", item.ID)
				fmt.Fprintf(out, "Document:     %s\n", item.DocumentID)
				fmt.Fprintf(out, "Status:       %s\n", item.Status.Label())
				fmt.Fprintf(out, "Priority:     %s\n", formatPriority(item.Priority))
				fmt.Fprintf(out, "Assignee:     %s\n", dash(item.AssignedTo))
				fmt.Fprintf(out, "SLA deadline: %s\n", formatWhen(item.SLADeadline))
				fmt.Fprintf(out, "Created:      %s\n", formatWhen(item.CreatedAt))
				fmt.Fprintf(out, "Claimed:      %s\n", formatWhenPtr(item.ClaimedAt))
				fmt.Fprintf(out, "Completed:    %s\n", formatWhenPtr(item.CompletedAt))
				if item.RejectReason != "" {
					fmt.Fprintf(out, "Reject reason: %s\n", item.RejectReason)
				}

				if len(item.Fields) > 0 {
					table := renderTable(
						[]string{"Field", "Value", "Confidence", "Corrected", "Locked", "Corrected By"},
						buildFieldRows(item.Fields),
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
					)
					fmt.Fprint(out, table)
				}
				return nil
			})
		},
	}
}

func newQueueClaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <item-id> <reviewer>",
		Short: "Claim a pending item for review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				item, err := store.Claim(cmd.Context(), args[0], args[1])
				if err != nil {
					return describeClaimError(err, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s claimed by %s\n", shortID(item.ID), item.AssignedTo)
				return nil
			})
		},
	}
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim <item-id> <reviewer>",
		Short: "Take over an item already in review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				item, err := store.Reclaim(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s reassigned to %s\n", shortID(item.ID), item.AssignedTo)
				return nil
			})
		},
	}
}

func newQueueAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <item-id>",
		Short: "Auto-assign a pending item to the least-loaded reviewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				item, err := store.AutoAssign(cmd.Context(), args[0])
				if err != nil {
					return describeClaimError(err, args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s assigned to %s\n", shortID(item.ID), item.AssignedTo)
				return nil
			})
		},
	}
}

func describeClaimError(err error, itemID string) error {
	if errors.Is(err, review.ErrClaimConflict) {
		return fmt.Errorf("item %s is already claimed: %w", itemID, err)
	}
	return err
}

func newQueueApproveCommand(ctx *commandContext) *cobra.Command {
	var override bool

	cmd := &cobra.Command{
		Use:   "approve <item-id> <reviewer>",
		Short: "Approve an item in review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				item, err := store.Submit(cmd.Context(), args[0], args[1], review.Submission{
					Action:   review.ActionApprove,
					Override: override,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s approved by %s\n", shortID(item.ID), args[1])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&override, "override", false, "Submit on behalf of the assigned reviewer")
	return cmd
}

func newQueueCorrectCommand(ctx *commandContext) *cobra.Command {
	var override bool
	var sets []string

	cmd := &cobra.Command{
		Use:   "correct <item-id> <reviewer>",
		Short: "Correct field values and complete the review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			corrections, err := parseCorrections(sets)
			if err != nil {
				return err
			}
			if len(corrections) == 0 {
				return errors.New("at least one --set name=value is required")
			}

			return ctx.withStore(func(store *review.Store) error {
				item, err := store.Submit(cmd.Context(), args[0], args[1], review.Submission{
					Action:      review.ActionCorrect,
					Corrections: corrections,
					Override:    override,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s corrected by %s (%d fields)\n",
					shortID(item.ID), args[1], len(corrections))
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "Field correction as name=value (repeatable)")
	cmd.Flags().BoolVar(&override, "override", false, "Submit on behalf of the assigned reviewer")
	return cmd
}

// parseCorrections turns name=value pairs into field inputs. Manual
// corrections carry full confidence.
func parseCorrections(sets []string) ([]review.FieldInput, error) {
	corrections := make([]review.FieldInput, 0, len(sets))
	for _, set := range sets {
		name, value, ok := strings.Cut(set, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid correction %q (expected name=value)", set)
		}
		corrections = append(corrections, review.FieldInput{
			Name:       name,
			Value:      value,
			Confidence: 100,
		})
	}
	return corrections, nil
}

func newQueueRejectCommand(ctx *commandContext) *cobra.Command {
	var override bool
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <item-id> <reviewer>",
		Short: "Reject an item in review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				item, err := store.Submit(cmd.Context(), args[0], args[1], review.Submission{
					Action:   review.ActionReject,
					Reason:   reason,
					Override: override,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s rejected by %s\n", shortID(item.ID), args[1])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason for rejection (required)")
	cmd.Flags().BoolVar(&override, "override", false, "Submit on behalf of the assigned reviewer")
	return cmd
}

func newQueueAuditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <item-id>",
		Short: "Show the audit trail for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				entries, err := store.AuditTrail(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No audit entries")
					return nil
				}
				table := renderTable(
					[]string{"#", "When", "Actor", "Action", "Detail"},
					buildAuditRows(entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and review throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				stats, err := store.QueueStats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queue depth:     %d (pending %d, in review %d)\n",
					stats.QueueDepth, stats.Pending, stats.InReview)
				fmt.Fprintf(out, "Completed today: %d\n", stats.CompletedToday)
				fmt.Fprintf(out, "Avg review time: %s\n", formatSeconds(stats.AverageReviewSeconds))
				fmt.Fprintf(out, "SLA compliance:  %.1f%%\n", stats.SLACompliancePercent)
				return nil
			})
		},
	}
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func newQueueWorkloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workload",
		Short: "Show active item counts per reviewer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *review.Store) error {
				workload, err := store.ReviewerWorkload(cmd.Context())
				if err != nil {
					return err
				}
				if len(workload) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No reviewers configured")
					return nil
				}
				rows := make([][]string, 0, len(workload))
				for _, reviewer := range sortedKeys(workload) {
					rows = append(rows, []string{reviewer, fmt.Sprintf("%d", workload[reviewer])})
				}
				table := renderTable(
					[]string{"Reviewer", "Active Items"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueReleaseExpiredCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "release-expired",
		Short: "Return items with expired claims to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cutoff := time.Now().UTC().Add(-time.Duration(cfg.Review.ClaimExpiryMinutes) * time.Minute)

			return ctx.withStore(func(store *review.Store) error {
				released, err := store.ReleaseExpiredClaims(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released %d expired claims\n", released)
				return nil
			})
		},
	}
}
