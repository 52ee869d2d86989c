package main

import (
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drive the processing queue",
}

var queuePeekFlags struct {
	n   int
	all bool
}

var queuePrioritizeFlags struct {
	priority int
}

var queueRetryFlags struct {
	priority int
}

var queueFailFlags struct {
	reason string
}

var queueRequeueFlags struct {
	olderThan time.Duration
}

var queueNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Claim the most urgent pending item, marking it PROCESSING",
	Args:  cobra.NoArgs,
	RunE:  runQueueNext,
}

var queuePeekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Look at upcoming items without claiming them",
	Args:  cobra.NoArgs,
	RunE:  runQueuePeek,
}

var queuePrioritizeCmd = &cobra.Command{
	Use:   "prioritize <function-id>",
	Short: "Change the priority of a PENDING item (lower = more urgent)",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueuePrioritize,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <function-id>",
	Short: "Manually re-enqueue an artifact with a fresh attempt budget",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueRetry,
}

var queueFailCmd = &cobra.Command{
	Use:   "fail <function-id>",
	Short: "Report a processing failure against a claimed item",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueFail,
}

var queueRequeueStaleCmd = &cobra.Command{
	Use:   "requeue-stale",
	Short: "Revert PROCESSING items stuck longer than the window back to PENDING",
	Args:  cobra.NoArgs,
	RunE:  runQueueRequeueStale,
}

func init() {
	queuePeekCmd.Flags().IntVarP(&queuePeekFlags.n, "count", "n", 10, "Max items to show")
	queuePeekCmd.Flags().BoolVar(&queuePeekFlags.all, "all", false, "Include non-PENDING items")

	queuePrioritizeCmd.Flags().IntVarP(&queuePrioritizeFlags.priority, "priority", "p", 0, "New priority (required)")
	_ = queuePrioritizeCmd.MarkFlagRequired("priority")

	queueRetryCmd.Flags().IntVarP(&queueRetryFlags.priority, "priority", "p", 0, "Priority for the retried item (default from config)")

	queueFailCmd.Flags().StringVar(&queueFailFlags.reason, "error", "", "Failure description recorded on the item")

	queueRequeueStaleCmd.Flags().DurationVar(&queueRequeueFlags.olderThan, "older-than", 30*time.Minute, "Age threshold for stuck PROCESSING items")

	queueCmd.AddCommand(queueNextCmd)
	queueCmd.AddCommand(queuePeekCmd)
	queueCmd.AddCommand(queuePrioritizeCmd)
	queueCmd.AddCommand(queueRetryCmd)
	queueCmd.AddCommand(queueFailCmd)
	queueCmd.AddCommand(queueRequeueStaleCmd)
}

func runQueueNext(cmd *cobra.Command, _ []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	item, err := eng.Next()
	return emit(cmd, item, err)
}

func runQueuePeek(cmd *cobra.Command, _ []string) error {
	st, _, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	items, err := st.PeekQueue(queuePeekFlags.n, queuePeekFlags.all)
	return emit(cmd, items, err)
}

func runQueuePrioritize(cmd *cobra.Command, args []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	if err := eng.Reprioritize(args[0], queuePrioritizeFlags.priority); err != nil {
		return emit(cmd, nil, err)
	}
	item, err := st.GetQueueItem(args[0])
	return emit(cmd, item, err)
}

func runQueueRetry(cmd *cobra.Command, args []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	item, err := eng.Retry(args[0], queueRetryFlags.priority)
	return emit(cmd, item, err)
}

func runQueueFail(cmd *cobra.Command, args []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	item, err := eng.FailItem(args[0], queueFailFlags.reason)
	return emit(cmd, item, err)
}

func runQueueRequeueStale(cmd *cobra.Command, _ []string) error {
	st, eng, err := openEngine()
	if err != nil {
		return emit(cmd, nil, err)
	}
	defer st.Close()

	n, err := eng.RequeueStale(queueRequeueFlags.olderThan)
	return emit(cmd, map[string]int{"requeued": n}, err)
}
