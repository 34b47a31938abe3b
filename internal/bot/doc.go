// Package bot 汇总了与线上 Telegram 机器人运行时相关的组件说明。
//
// 当前服务不直接驱动机器人：用户在 Telegram 侧输入 /start 深链后，机器人
// 负责解析绑定码并确认身份，然后把确认事件投递到 internal/onboarding 的
// 确认队列（Redis 或 RabbitMQ 驱动），由 Listener 消费落账。演示部署没有
// 真实机器人时，internal/api 暴露的 confirm-link 入口与轮询自动确认捷径
// 模拟同样的事件流。
//
// 未来的机器人运行时（长轮询 Telegram Bot API、会话管理、命令路由）计划
// 落在本目录，对接的事件契约见 onboarding.Confirmation。
package bot
