// Command coremq-shell is an interactive admin console over an embedded
// Client & Session Coordination Core, reworking the teacher's
// gomqtt-interactive (an interactive pub/sub client shell) into an
// operator console for this core's admin surface (see DESIGN.md).
package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/sirupsen/logrus"

	"github.com/qingcloudhx/mqttcore/coreengine"
	"github.com/qingcloudhx/mqttcore/packet"
)

func main() {
	engine := coreengine.New(coreengine.Options{
		ClientID: "coremq-shell",
		Logger:   logrus.StandardLogger(),
	})
	engine.Start()
	defer engine.Stop()

	shell := ishell.New()
	shell.SetPrompt("coremq> ")
	shell.Println("coremq admin shell — embedded coordination core, no sessions until clients attach")

	registerCommands(shell, engine)

	shell.Run()
}

func registerCommands(shell *ishell.Shell, engine *coreengine.Engine) {
	shell.AddCmd(&ishell.Cmd{
		Name: "sessions",
		Help: "list every installed client_id",
		Func: func(c *ishell.Context) {
			ids := engine.ListClientIDs()
			if len(ids) == 0 {
				c.Println("(no sessions)")
				return
			}
			for _, id := range ids {
				c.Println(id)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "status <client_id> — show connection and session status",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: status <client_id>")
				return
			}
			clientID := c.Args[0]

			if cs, ok := engine.GetClientStatus(clientID); ok {
				c.Printf("connection: endpoint=%s protocol=%d status=%s\n", cs.Endpoint, cs.ProtocolVersion, cs.Status)
			} else {
				c.Println("connection: (none)")
			}

			if ss, ok := engine.GetSessionStatus(clientID); ok {
				c.Printf("session: created_at=%s items=%d subs=%d has_will=%t fill=%.2f\n",
					ss.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), ss.ItemCount, ss.Subscriptions, ss.HasWill, ss.FillStatus)
			} else {
				c.Println("session: (none)")
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "subscribe",
		Help: "subscribe <client_id> <filter> [qos]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Println("usage: subscribe <client_id> <filter> [qos]")
				return
			}

			qos := packet.QOSAtMostOnce
			if len(c.Args) >= 3 {
				n, err := strconv.Atoi(c.Args[2])
				if err != nil {
					c.Println("invalid qos:", err)
					return
				}
				qos = packet.QOS(n)
			}

			if err := engine.Subscribe(c.Args[0], c.Args[1], qos); err != nil {
				c.Println("error:", err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "unsubscribe",
		Help: "unsubscribe <client_id> <filter>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: unsubscribe <client_id> <filter>")
				return
			}
			if err := engine.Unsubscribe(c.Args[0], c.Args[1]); err != nil {
				c.Println("error:", err)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "delete",
		Help: "delete <client_id> — stop the live connection (if any) and drop the session",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Println("usage: delete <client_id>")
				return
			}
			engine.DeleteSession(context.Background(), c.Args[0])
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "publish",
		Help: "publish <topic> <payload> — dispatch a server-originated message",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Println("usage: publish <topic> <payload>")
				return
			}
			engine.DispatchApplicationMessage(&packet.Message{
				Topic:   c.Args[0],
				Payload: []byte(c.Args[1]),
			})
			c.Println(fmt.Sprintf("dispatched 1 message to %q", c.Args[0]))
		},
	})
}
