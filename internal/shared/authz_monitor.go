package shared

// Monitoring permissions.
const (
	PermMonitorViewSystem  = "monitor.view_system"
	PermMonitorViewMetrics = "monitor.view_metrics"
	PermMonitorViewLogs    = "monitor.view_logs"
)

// MonitorPermissions lists catalog entries in the monitor category.
func MonitorPermissions() []PermissionDef {
	return []PermissionDef{
		{Name: PermMonitorViewSystem, Description: "View system monitoring dashboard", Category: "monitor"},
		{Name: PermMonitorViewMetrics, Description: "View detailed system metrics", Category: "monitor"},
		{Name: PermMonitorViewLogs, Description: "View application logs", Category: "monitor"},
	}
}
