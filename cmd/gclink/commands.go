package main

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/gclink/broker"
	"github.com/temoto/gclink/helpers/cli"
	"github.com/temoto/gclink/mavlink"
)

const usage = `commands:
- connect             attach console session and open link
- disconnect          detach console session, last session closes link
- refresh             request full parameter list
- params [PREFIX]     show cached parameters
- get NAME            show cached parameter, request from vehicle if unknown
- set NAME VALUE      send PARAM_SET
- state               link, vehicle and sidecar summary
- cmd ID [P1..P7]     send COMMAND_LONG and wait for ack, ID is number or name
- follow on|off       toggle follow behavior
- verbose on|off      print every received packet
- quit`

var commandNames = map[string]uint16{
	"rtl":      mavlink.MAV_CMD_NAV_RETURN_TO_LAUNCH,
	"set_mode": mavlink.MAV_CMD_DO_SET_MODE,
	"reboot":   mavlink.MAV_CMD_PREFLIGHT_REBOOT,
	"arm":      mavlink.MAV_CMD_COMPONENT_ARM_DISARM,
	"interval": mavlink.MAV_CMD_SET_MESSAGE_INTERVAL,
	"version":  mavlink.MAV_CMD_REQUEST_PROTOCOL_VERSION,
	"caps":     mavlink.MAV_CMD_REQUEST_AUTOPILOT_CAPS,
}

type action struct {
	name string
	args []string
}

var arity = map[string][2]int{
	"help":       {0, 0},
	"connect":    {0, 0},
	"disconnect": {0, 0},
	"refresh":    {0, 0},
	"params":     {0, 1},
	"get":        {1, 1},
	"set":        {2, 2},
	"state":      {0, 0},
	"cmd":        {1, 8},
	"follow":     {1, 1},
	"verbose":    {1, 1},
	"quit":       {0, 0},
}

func parseAction(line string) (action, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return action{}, errors.NotValidf("empty command")
	}
	a := action{name: strings.ToLower(words[0]), args: words[1:]}
	if a.name == "exit" {
		a.name = "quit"
	}
	limits, ok := arity[a.name]
	if !ok {
		return a, errors.NotFoundf("command=%s", a.name)
	}
	if len(a.args) < limits[0] || len(a.args) > limits[1] {
		return a, errors.NotValidf("command=%s arguments=%d expected %d..%d", a.name, len(a.args), limits[0], limits[1])
	}
	return a, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "1", "true":
		return true, nil
	case "off", "no", "0", "false":
		return false, nil
	}
	return false, errors.NotValidf("switch=%s expected on|off", s)
}

func parseCommandLong(args []string) (mavlink.CommandLong, error) {
	cmd := mavlink.CommandLong{}
	if id, ok := commandNames[strings.ToLower(args[0])]; ok {
		cmd.Command = id
	} else {
		id, err := strconv.ParseUint(args[0], 0, 16)
		if err != nil {
			return cmd, errors.NotValidf("command id=%s", args[0])
		}
		cmd.Command = uint16(id)
	}
	for i, s := range args[1:] {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return cmd, errors.NotValidf("command param%d=%s", i+1, s)
		}
		cmd.Params[i] = float32(f)
	}
	return cmd, nil
}

type shell struct {
	b       *broker.Broker
	con     *console
	timeout time.Duration
	quit    func()
}

func (self *shell) completer() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "connect", Description: "open link"},
		{Text: "disconnect", Description: "close link"},
		{Text: "refresh", Description: "request all parameters"},
		{Text: "params", Description: "show parameters [prefix]"},
		{Text: "get", Description: "show parameter NAME"},
		{Text: "set", Description: "set parameter NAME VALUE"},
		{Text: "state", Description: "connection summary"},
		{Text: "cmd", Description: "send command ID [p1..p7]"},
		{Text: "follow", Description: "follow on|off"},
		{Text: "verbose", Description: "packet dump on|off"},
		{Text: "help", Description: "show usage"},
		{Text: "quit", Description: "exit"},
	}
	return cli.Complete(suggests)
}

func (self *shell) exec(line string) {
	if err := self.run(line); err != nil {
		self.con.printf(self.con.bad, "%v", err)
	}
}

func (self *shell) run(line string) error {
	a, err := parseAction(line)
	if err != nil {
		return err
	}
	b, con := self.b, self.con
	switch a.name {
	case "help":
		con.printf(nil, usage)

	case "connect":
		con.setManual(false)
		return b.Connect(consoleSession, con)

	case "disconnect":
		con.setManual(true)
		b.Disconnect(consoleSession)

	case "refresh":
		b.RefreshParameters()

	case "params":
		prefix := ""
		if len(a.args) == 1 {
			prefix = a.args[0]
		}
		ps := b.Params().Sorted(prefix)
		for _, p := range ps {
			con.printf(nil, "%s", p)
		}
		con.printf(con.note, "%d parameters", len(ps))

	case "get":
		if p, ok := b.Parameter(a.args[0]); ok {
			con.printf(nil, "%s", p)
			return nil
		}
		con.printf(con.note, "%s not cached, requested", a.args[0])
		return b.ReadParameter(a.args[0])

	case "set":
		p, ok := b.Parameter(a.args[0])
		if !ok {
			return errors.NotFoundf("param %s", a.args[0])
		}
		v, err := p.ParseValue(a.args[1])
		if err != nil {
			return err
		}
		p.Value = v
		return b.SendParameter(p)

	case "state":
		self.state()

	case "cmd":
		cmd, err := parseCommandLong(a.args)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), self.timeout)
		defer cancel()
		ack, err := b.SendCommand(ctx, cmd)
		if err != nil {
			return err
		}
		con.printf(con.good, "%s", ack)
		return ack.Err()

	case "follow":
		on, err := parseOnOff(a.args[0])
		if err != nil {
			return err
		}
		b.SetFollow(on)

	case "verbose":
		on, err := parseOnOff(a.args[0])
		if err != nil {
			return err
		}
		v := int32(0)
		if on {
			v = 1
		}
		atomic.StoreInt32(&con.verbose, v)

	case "quit":
		self.quit()
	}
	return nil
}

func (self *shell) state() {
	b, con := self.b, self.con
	s := b.Link().Stat()
	con.printf(nil, "link %s state=%s connected=%t heartbeat=%t since=%s",
		b.Link().Config(), b.State(), b.Connected(), b.HeartbeatAlive(), b.Link().ConnectedAt().Format(time.RFC3339))
	con.printf(nil, "packets in=%d out=%d bytes in=%d out=%d errors=%d dropped=%d crc=%d queue=%d",
		s.Received, s.Sent, s.BytesIn, s.BytesOut, s.CommErrors, s.Dropped, s.Parser.BadCRC, b.Link().QueueLen())
	con.printf(nil, "vehicle %s firmware=%s params=%d refreshing=%t pending_commands=%d follow=%t",
		b.Vehicle(), b.Firmware(), b.Params().Len(), b.Params().Refreshing(), b.PendingCommands(), b.Following())
	if side := b.Sidecar(); side != nil {
		con.printf(nil, "sidecar %s running=%t connected=%t", side.Addr(), side.Running(), side.Connected())
	}
	con.printf(nil, "sessions %s", strings.Join(b.Sessions(), ","))
}
