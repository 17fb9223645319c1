// Package redis wraps a redigo connection pool for the broadcast
// example's presence set and recent-message history — it is not part
// of the reactor core, just one example handler's storage backend.
package redis

import (
	"fmt"
	"strings"
	"time"

	redigo "github.com/garyburd/redigo/redis"
)

type Option struct {
	Host string `yaml:"host" json:"host"`
	Port string `yaml:"port" json:"port"`
	Auth string `yaml:"auth" json:"auth"`
	Db   uint8  `yaml:"db" json:"db"`

	MaxConnLifetime int  `yaml:"max_conn_lifetime" json:"max_conn_lifetime"` // seconds
	MaxIdle         int  `yaml:"max_idle" json:"max_idle"`
	MaxActive       int  `yaml:"max_active" json:"max_active"`
	Wait            bool `yaml:"wait" json:"wait"`

	ConnectTimeout int `yaml:"connect_timeout" json:"connect_timeout"` // ms
	ReadTimeout    int `yaml:"read_timeout" json:"read_timeout"`       // ms
	WriteTimeout   int `yaml:"write_timeout" json:"write_timeout"`     // ms
}

type Pool struct {
	pool *redigo.Pool
}

// NewPool is grounded on the teacher's own RedisPool.Dial closure, with
// the broken bare `import "boot"` and the AcquireArgs/ReleaseArgs pool
// (see pool.go in root, dropped — DESIGN.md) removed along with it.
func NewPool(option *Option) *Pool {
	return &Pool{
		pool: &redigo.Pool{
			MaxConnLifetime: time.Second * time.Duration(option.MaxConnLifetime),
			MaxIdle:         option.MaxIdle,
			MaxActive:       option.MaxActive,
			Wait:            option.Wait,
			Dial: func() (redigo.Conn, error) {
				c, err := redigo.Dial("tcp",
					fmt.Sprintf("%s:%s", option.Host, option.Port),
					redigo.DialConnectTimeout(time.Millisecond*time.Duration(option.ConnectTimeout)),
					redigo.DialReadTimeout(time.Millisecond*time.Duration(option.ReadTimeout)),
					redigo.DialWriteTimeout(time.Millisecond*time.Duration(option.WriteTimeout)),
				)
				if err != nil {
					return nil, err
				}

				if len(option.Auth) > 0 {
					if _, err := c.Do("AUTH", option.Auth); err != nil {
						_ = c.Close()
						return nil, err
					}
				}

				if _, err := c.Do("SELECT", option.Db); err != nil {
					_ = c.Close()
					return nil, err
				}
				return c, nil
			},
		},
	}
}

func (rp *Pool) Get() *Conn {
	return &Conn{conn: rp.pool.Get()}
}

func (rp *Pool) Close() error {
	return rp.pool.Close()
}

// Conn is a checked-out pool connection. Close returns it to the pool;
// it does not close the underlying TCP connection.
type Conn struct {
	conn redigo.Conn
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) Do(cmd string, args ...interface{}) (interface{}, error) {
	return c.conn.Do(cmd, args...)
}

// SAdd/SRem/SMembers back the broadcast example's presence set.
func (c *Conn) SAdd(key string, member interface{}) error {
	_, err := c.conn.Do("SADD", key, member)
	return err
}

func (c *Conn) SRem(key string, member interface{}) error {
	_, err := c.conn.Do("SREM", key, member)
	return err
}

func (c *Conn) SMembers(key string) ([]string, error) {
	return redigo.Strings(c.conn.Do("SMEMBERS", key))
}

// LPush/LTrim/LRange back the broadcast example's recent-message history.
func (c *Conn) LPush(key string, value []byte) error {
	_, err := c.conn.Do("LPUSH", key, value)
	return err
}

func (c *Conn) LTrim(key string, start, stop int) error {
	_, err := c.conn.Do("LTRIM", key, start, stop)
	return err
}

func (c *Conn) LRange(key string, start, stop int) ([][]byte, error) {
	return redigo.ByteSlices(c.conn.Do("LRANGE", key, start, stop))
}

func (c *Conn) Set(key string, value interface{}) bool {
	receive, _ := redigo.String(c.conn.Do("SET", key, value))
	return strings.ToUpper(receive) == "OK"
}
