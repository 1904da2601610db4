package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	downloadQueueName = "video_download_tasks"
	// prefetch 与消费者并发数配合使用，避免单实例囤积消息
	downloadConcurrency = 4
)

// amqpQueue 基于 RabbitMQ 的下载队列，持久化消息，服务重启后任务不丢
type amqpQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPQueue 连接 RabbitMQ 并声明持久化队列
func NewAMQPQueue(dsn string) (DownloadQueue, error) {
	conn, err := amqp.Dial(dsn)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		downloadQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	_ = ch.Qos(downloadConcurrency, 0, false)
	return &amqpQueue{conn: conn, ch: ch}, nil
}

func (q *amqpQueue) Publish(job DownloadJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"", downloadQueueName, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         b,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// Consume 消费下载任务。处理成功 Ack；临时失败重入队一次，
// 重复失败的消息丢弃，软错误已经落在任务记录上。
func (q *amqpQueue) Consume(handler func(job DownloadJob) error) error {
	deliveries, err := q.ch.Consume(downloadQueueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	for d := range deliveries {
		var job DownloadJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			zap.L().Warn("invalid download job payload", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		if err := handler(job); err != nil {
			if d.Redelivered {
				zap.L().Warn("download job failed twice, dropping",
					zap.String("task_id", job.TaskID), zap.Error(err))
				_ = d.Nack(false, false)
			} else {
				zap.L().Warn("download job failed, requeueing once",
					zap.String("task_id", job.TaskID), zap.Error(err))
				_ = d.Nack(false, true)
			}
			continue
		}
		_ = d.Ack(false)
	}
	return nil
}

func (q *amqpQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
