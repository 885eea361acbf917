// Package services 提供应用级用例
//
// Service 层协调平台层和事件总线，不包含活动监控本身的逻辑。
//
// 职责：
//   - 启动监控前检查并缓存系统权限
//   - 权限缺失时通过事件总线通知 App 层

package services
