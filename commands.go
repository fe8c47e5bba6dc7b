package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ballancemmo/relay/internal/logging"
	"ballancemmo/relay/internal/protocol"
)

// ErrStop is returned by Execute when the operator asks for shutdown.
var ErrStop = errors.New("stop requested")

var errUsage = errors.New("usage")

// Execute runs one console command synchronously against the same session
// table and gate functions the network path uses. It returns a human-readable
// reply for the console.
func (b *Broker) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	command, args := fields[0], fields[1:]
	switch command {
	case "list":
		return b.cmdList(), nil
	case "say":
		return b.cmdSay(strings.TrimSpace(strings.TrimPrefix(line, "say")))
	case "kick":
		return b.cmdKick(args, protocol.CrashNone)
	case "crash":
		return b.cmdKick(args, protocol.CrashCrash)
	case "fatal":
		return b.cmdKick(args, protocol.CrashFatalError)
	case "ban":
		return b.cmdBan(args)
	case "unban":
		return b.cmdUnban(args)
	case "mute":
		return b.cmdMute(args, true)
	case "unmute":
		return b.cmdMute(args, false)
	case "op":
		return b.cmdOp(args, true)
	case "deop":
		return b.cmdOp(args, false)
	case "cheat":
		return b.cmdCheat(args)
	case "bulletin":
		return b.cmdBulletin(strings.TrimSpace(strings.TrimPrefix(line, "bulletin")))
	case "countdown":
		return b.cmdCountdown(args)
	case "stop":
		return "stopping", ErrStop
	default:
		return "", fmt.Errorf("unknown command %q", command)
	}
}

func (b *Broker) cmdList() string {
	b.mu.Lock()
	names := make(map[string]string, len(b.mapNames))
	for hash, name := range b.mapNames {
		names[hash] = name
	}
	b.mu.Unlock()
	//1.- The console runs off the serving goroutine, so it only ever sees
	// value snapshots of the sessions.
	rows := b.table.Overviews()
	sort.Slice(rows, func(i, j int) bool { return rows[i].Handle < rows[j].Handle })
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, fmt.Sprintf("%d player(s) online", len(rows)))
	for _, r := range rows {
		flags := ""
		if r.Cheated {
			flags = " [cheat]"
		}
		lines = append(lines, fmt.Sprintf("#%d %s%s @ %s sector %d, ping %dms",
			r.Handle, r.Name, flags, r.CurrentMap.DisplayName(names), r.CurrentSector, r.PingMillis))
	}
	return strings.Join(lines, "\n")
}

func (b *Broker) cmdSay(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: say <message>", errUsage)
	}
	//1.- Player id zero attributes the line to the server.
	b.broadcast(&protocol.Chat{PlayerID: 0, Content: text}, true)
	return "sent", nil
}

func (b *Broker) cmdKick(args []string, crash protocol.CrashType) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: kick <name> [reason]", errUsage)
	}
	target, ok := b.resolveTarget(0, args[0])
	if !ok {
		return "", fmt.Errorf("player %q not found", args[0])
	}
	b.kick(target, "", strings.Join(args[1:], " "), crash)
	return "kicked " + target.Name, nil
}

func (b *Broker) cmdBan(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: ban <name> [reason]", errUsage)
	}
	target, ok := b.resolveTarget(0, args[0])
	if !ok {
		return "", fmt.Errorf("player %q not found (only online players can be banned by name)", args[0])
	}
	reason := strings.Join(args[1:], " ")
	uuid := protocol.UUIDString(target.UUID)
	if err := b.mod.SetBan(uuid, reason); err != nil {
		return "", err
	}
	b.kick(target, "", reason, protocol.CrashNone)
	b.log.Info("player banned", logging.String("name", target.Name), logging.String("uuid", uuid))
	return "banned " + target.Name, nil
}

func (b *Broker) cmdUnban(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: unban <uuid>", errUsage)
	}
	if err := b.mod.RemoveBan(args[0]); err != nil {
		return "", err
	}
	return "unbanned " + args[0], nil
}

func (b *Broker) cmdMute(args []string, muted bool) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: mute <name>", errUsage)
	}
	target, ok := b.resolveTarget(0, args[0])
	if !ok {
		return "", fmt.Errorf("player %q not found", args[0])
	}
	changed, err := b.mod.SetMute(protocol.UUIDString(target.UUID), muted)
	if err != nil {
		return "", err
	}
	if !changed {
		return "no change", nil
	}
	if muted {
		return "muted " + target.Name, nil
	}
	return "unmuted " + target.Name, nil
}

func (b *Broker) cmdOp(args []string, grant bool) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: op <name>", errUsage)
	}
	target, ok := b.resolveTarget(0, args[0])
	if !ok {
		return "", fmt.Errorf("player %q not found", args[0])
	}
	if grant {
		if err := b.mod.SetOp(target.Name, protocol.UUIDString(target.UUID)); err != nil {
			return "", err
		}
		b.send(target.Handle, &protocol.OpState{Op: 1}, true)
		return "opped " + target.Name, nil
	}
	if _, err := b.mod.RemoveOp(target.Name); err != nil {
		return "", err
	}
	b.send(target.Handle, &protocol.OpState{Op: 0}, true)
	return "deopped " + target.Name, nil
}

func (b *Broker) cmdCheat(args []string) (string, error) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return "", fmt.Errorf("%w: cheat on|off", errUsage)
	}
	cheated := uint8(0)
	if args[0] == "on" {
		cheated = 1
	}
	b.broadcast(&protocol.OwnedCheatToggle{PlayerID: 0, Cheated: cheated}, true)
	return "cheat mode " + args[0], nil
}

func (b *Broker) cmdBulletin(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: bulletin <text>|clear", errUsage)
	}
	notice := protocol.PermanentNotification{Title: "Bulletin", Content: text}
	if text == "clear" {
		notice = protocol.PermanentNotification{}
	}
	b.mu.Lock()
	b.bulletin = notice
	b.mu.Unlock()
	b.broadcast(&notice, true)
	if notice.Content == "" {
		return "bulletin cleared", nil
	}
	return "bulletin set", nil
}

// cmdCountdown fires an immediate Go countdown for the named player's map.
func (b *Broker) cmdCountdown(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: countdown <name>", errUsage)
	}
	target, ok := b.resolveTarget(0, args[0])
	if !ok {
		return "", fmt.Errorf("player %q not found", args[0])
	}
	location, _, _ := b.table.Location(target.Handle)
	m := &protocol.Countdown{Type: protocol.CountdownGo, Sender: 0, Map: location}
	if b.cfg.RestartLevel {
		m.RestartLevel = 1
	}
	if b.cfg.ForceRestart {
		m.ForceRestart = 1
	}
	key := m.Map.Key()
	if m.ForceRestart != 0 {
		b.tracker.ArmAll(b.namedMapKeys(key))
	} else {
		b.tracker.Arm(key)
	}
	b.table.ClearReady()
	b.broadcast(m, true)
	return "countdown sent", nil
}
