package entities

import "time"

type CountBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type TrendPoint struct {
	Date      time.Time `json:"date"`
	Created   int       `json:"created"`
	Completed int       `json:"completed"`
}

type DashboardStats struct {
	TotalClients          int           `json:"total_clients"`
	ActiveClients         int           `json:"active_clients"`
	PendingFollowUps      int           `json:"pending_follow_ups"`
	OverdueFollowUps      int           `json:"overdue_follow_ups"`
	DueTodayFollowUps     int           `json:"due_today_follow_ups"`
	CompletedLast7Days    int           `json:"completed_last_7_days"`
	InteractionsLast30Day int           `json:"interactions_last_30_days"`
	ClientsByStatus       []CountBucket `json:"clients_by_status"`
	UpcomingFollowUps     []FollowUp    `json:"upcoming_follow_ups"`
}
