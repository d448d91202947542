package chat

import "fmt"

func toggleText(flag RoomFlag, enabled bool, extra int) string {
	switch flag {
	case FlagFollowersOnly:
		if enabled {
			return "This room is in followers-only mode."
		}
		return "This room is no longer in followers-only mode."
	case FlagEmoteOnly:
		if enabled {
			return "This room is now in emote-only mode."
		}
		return "This room is no longer in emote-only mode."
	case FlagR9K:
		if enabled {
			return "This room is now in R9K mode."
		}
		return "This room is no longer in R9K mode."
	case FlagSlowMode:
		if enabled {
			return fmt.Sprintf("This room is now in slow mode. You may send messages every %d seconds.", extra)
		}
		return "This room is no longer in slow mode."
	case FlagSubscribersOnly:
		if enabled {
			return "This room is now in subscriber-only mode."
		}
		return "This room is no longer in subscriber-only mode."
	}
	return ""
}

const (
	chatClearedText = "Chat was cleared by a moderator."
	unhostText      = "No longer hosting."
)

func hostedText(hoster string, auto bool, viewers int) string {
	mode := ""
	if auto {
		mode = "auto "
	}
	return fmt.Sprintf("%s is now %shosting you for up to %d viewers.", hoster, mode, viewers)
}

func hostingText(target string, viewers int) string {
	return fmt.Sprintf("Now hosting %s for up to %d viewers.", target, viewers)
}

func primeSuffix(prime bool) string {
	if prime {
		return " with Twitch Prime"
	}
	return ""
}

func subscriptionText(user string, prime bool) string {
	return fmt.Sprintf("%s just subscribed%s!", user, primeSuffix(prime))
}

func resubText(user string, months int, prime bool) string {
	return fmt.Sprintf("%s just re-subscribed for %d months in a row%s!", user, months, primeSuffix(prime))
}

func subGiftText(user, recipient string) string {
	return fmt.Sprintf("%s just gifted a sub to %s!", user, recipient)
}

func newChatterText(user string) string {
	return fmt.Sprintf("%s is new here! Say hi to %s!", user, user)
}

func raidText(raider string, viewers int) string {
	return fmt.Sprintf("%s is raiding with a party of %d!", raider, viewers)
}

func reasonSuffix(reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf(" Reason: %s.", reason)
}

func banText(user, reason string) string {
	return fmt.Sprintf("%s is now banned.%s", user, reasonSuffix(reason))
}

func timeoutText(user string, seconds int, reason string) string {
	return fmt.Sprintf("%s is now timed out for %d seconds.%s", user, seconds, reasonSuffix(reason))
}
