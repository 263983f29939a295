package session

const (
	QueueKey   = "summarize_queue"
	PendingKey = "pending_calls"
)

func customerKey(callID string) string    { return "call:" + callID + ":customer_id" }
func chunksKey(callID string) string      { return "call:" + callID + ":chunks" }
func processedKey(callID string) string   { return "call:" + callID + ":processed_index" }
func lastSummaryKey(callID string) string { return "call:" + callID + ":last_summary_ts" }
func summaryKey(callID string) string     { return "call:" + callID + ":summary" }
func historyKey(callID string) string     { return "call:" + callID + ":history" }
func promotionsKey(callID string) string  { return "call:" + callID + ":promotions" }
func lockKey(callID string) string        { return "lock:call:" + callID }

// callKeys lists every per-call key, lock included.
func callKeys(callID string) []string {
	return []string{
		customerKey(callID),
		chunksKey(callID),
		processedKey(callID),
		lastSummaryKey(callID),
		summaryKey(callID),
		historyKey(callID),
		promotionsKey(callID),
		lockKey(callID),
	}
}
