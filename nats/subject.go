package nats

import (
	"fmt"
)

// ClusterSubmitSubject carries job requests to the cluster workers.
const ClusterSubmitSubject = "cluster.jobs.submit"

// ClusterWorkerQueue load balances requests across workers.
const ClusterWorkerQueue = "cluster.workers"

func GetCompletionSubject(clientID string) string {
	return fmt.Sprintf("cluster.%s.completion", clientID)
}

func GetGameEventsSubject(gameID uint64) string {
	return fmt.Sprintf("game.%d.events", gameID)
}
