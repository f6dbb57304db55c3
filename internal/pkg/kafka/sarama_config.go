package kafka

import (
	"Horizon/internal/api/config"
	"time"

	"github.com/IBM/sarama"
)

const clientID = "horizon-chat"

func baseSaramaConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = clientID

	if kafkaCfg.Sasl.Enable {
		c.Net.SASL.Enable = true
		c.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		c.Net.SASL.User = kafkaCfg.Sasl.Username
		c.Net.SASL.Password = kafkaCfg.Sasl.Password
	}
	return c
}

// newConsumerConfig 归档消费组: 从最新位置开始, 处理成功后手动提交
func newConsumerConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := baseSaramaConfig(kafkaCfg)

	c.Consumer.Return.Errors = true
	c.Consumer.Offsets.Initial = sarama.OffsetNewest
	c.Consumer.Offsets.AutoCommit.Enable = false

	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	if v := kafkaCfg.Consumer.SessionTimeout; v > 0 {
		c.Consumer.Group.Session.Timeout = seconds(v)
	}
	if v := kafkaCfg.Consumer.HeartbeatInterval; v > 0 {
		c.Consumer.Group.Heartbeat.Interval = seconds(v)
	}
	if v := kafkaCfg.Consumer.RebalanceTimeout; v > 0 {
		c.Consumer.Group.Rebalance.Timeout = seconds(v)
	}
	if v := kafkaCfg.Consumer.MaxProcessingTime; v > 0 {
		c.Consumer.MaxProcessingTime = seconds(v)
	}
	return c
}

// newProducerConfig 聊天事件以 session id 为 key, 同一会话的事件进入同一分区并保持顺序
func newProducerConfig(kafkaCfg config.KafkaConfig) *sarama.Config {
	c := baseSaramaConfig(kafkaCfg)

	c.Producer.Return.Successes = true
	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Retry.Max = 3
	c.Producer.Partitioner = sarama.NewHashPartitioner
	c.Net.MaxOpenRequests = 1
	return c
}
