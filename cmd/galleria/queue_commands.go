package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"galleria/internal/queue"
	"galleria/internal/services"
)

// errQueueInUse rejects edits that would disturb a running galleria.
var errQueueInUse = errors.New("waiting list is being processed")

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and edit the waiting list",
		Long: "Inspect and edit the waiting list. A running galleria picks up\n" +
			"changes made here on its next gallery. While one is running, the\n" +
			"gallery it is downloading cannot be removed and the order is fixed.",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueFrontCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List waiting galleries in processing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.openQueue()
			if err != nil {
				return err
			}
			entries := q.Entries()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Waiting list is empty")
				return nil
			}
			table := renderTable(
				[]string{"#", "ID", "Title", "Items", "Added"},
				buildQueueListRows(entries),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func buildQueueListRows(entries []queue.GalleryRequest) [][]string {
	rows := make([][]string, 0, len(entries))
	for i, entry := range entries {
		added := "-"
		if !entry.AddedAt.IsZero() {
			added = humanize.Time(entry.AddedAt)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			shortID(entry.ID),
			entry.Title,
			strconv.Itoa(len(entry.Items)),
			added,
		})
	}
	return rows
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a gallery from the waiting list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.openQueue()
			if err != nil {
				return err
			}
			entry, err := resolveEntry(q, args[0])
			if err != nil {
				return err
			}
			if head, ok := q.Current(); ok && head.ID == entry.ID {
				busy, err := ctx.queueInUse()
				if err != nil {
					return err
				}
				if busy {
					return services.Wrap(services.ErrValidation, "", "queue remove",
						fmt.Sprintf("%s is being downloaded", entry.Title), errQueueInUse)
				}
			}
			if err := q.Remove(entry.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", entry.Title)
			return nil
		},
	}
}

func newQueueFrontCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "front <id>",
		Short: "Move a gallery to the head of the waiting list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			busy, err := ctx.queueInUse()
			if err != nil {
				return err
			}
			if busy {
				return services.Wrap(services.ErrValidation, "", "queue front",
					"another galleria is processing the waiting list", errQueueInUse)
			}
			q, err := ctx.openQueue()
			if err != nil {
				return err
			}
			entry, err := resolveEntry(q, args[0])
			if err != nil {
				return err
			}
			if err := q.MoveToFront(entry.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to the front\n", entry.Title)
			return nil
		},
	}
}

// resolveEntry accepts a full id or an unambiguous prefix of one.
func resolveEntry(q *queue.Queue, ref string) (queue.GalleryRequest, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if entry, ok := q.Get(ref); ok {
		return entry, nil
	}
	var matches []queue.GalleryRequest
	for _, entry := range q.Entries() {
		if ref != "" && strings.HasPrefix(entry.ID, ref) {
			matches = append(matches, entry)
		}
	}
	switch len(matches) {
	case 0:
		return queue.GalleryRequest{}, fmt.Errorf("%s: %w", ref, queue.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return queue.GalleryRequest{}, fmt.Errorf("id prefix %q matches %d galleries", ref, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
