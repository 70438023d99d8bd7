package classify

import (
	"mime"
	"regexp"
	"strings"

	"github.com/creativeprojects/imapfilter/rules"
)

// compressed archives, unknown binaries and office documents with macros
var (
	riskyMediaType = regexp.MustCompile(`(?i)(zip|rar|7z|compressed|octet-stream|macroenabled)`)
	riskyFileName  = regexp.MustCompile(`(?i)\.(zip|rar|7z|docm|xlsm|pptm)$`)
)

type evaluation struct {
	set    *rules.Set
	flags  Flags
	ham    *rules.Rule
	gray   *rules.Rule
	spam   *rules.Rule
	folder *rules.Rule
}

// Classify returns the verdict for a message. The sender is the envelope
// sender (or the From address when unknown). Within each list the first
// matching header line wins, folder rules included: a later line matching
// another folder rule does not change the destination.
// Precedence, first match wins:
//
//  1. graylist on From/Return-Path: marked read and moved to the gray folder
//  2. whitelist on From/To/Cc/Bcc/Return-Path: kept, or routed by a folder rule
//  3. blacklist on From/Subject/Return-Path, no From, no Date, or sender is one of mine: spam
//  4. risky attachment type (when enabled): dropped
//  5. anything else: kept, or routed by a folder rule
func Classify(header *Header, sender string, set *rules.Set) Verdict {
	if set == nil {
		set = &rules.Set{}
	}
	e := &evaluation{set: set}

	for _, field := range header.Fields {
		line := field.Line()
		switch strings.ToLower(field.Name) {
		case "to", "cc", "bcc":
			first(&e.ham, set.Whitelist.Match(line))
			first(&e.folder, set.Folders.Match(line))

		case "from":
			e.flags |= SawFrom
			e.filterSender(line)
			first(&e.folder, set.Folders.Match(line))

		case "subject":
			if rule := set.Blacklist.Match(line); rule != nil {
				first(&e.spam, rule)
			} else {
				first(&e.folder, set.Folders.Match(line))
			}

		case "date":
			e.flags |= SawDate

		case "list-post":
			first(&e.folder, set.Folders.Match(line))

		case "return-path":
			e.filterSender(line)
			first(&e.folder, set.Folders.Match(line))

		case "content-type":
			if set.DropAttachments && riskyAttachment(field.Value) {
				e.flags |= Attachment
			}
		}
	}
	if set.IsSelf(sender) {
		e.flags |= FromSelf
	}
	if e.ham != nil {
		e.flags |= IsHam
	}
	if e.gray != nil {
		e.flags |= IsIgnored
	}
	if e.spam != nil {
		e.flags |= IsSpam
	}
	return e.decide()
}

func (e *evaluation) filterSender(line string) {
	first(&e.ham, e.set.Whitelist.Match(line))
	first(&e.gray, e.set.Graylist.Match(line))
	first(&e.spam, e.set.Blacklist.Match(line))
}

func (e *evaluation) decide() Verdict {
	switch {
	case e.gray != nil:
		return e.moveTo(e.set.GrayFolder, MarkReadAndMove, CodeIgnored, e.gray, "graylist")

	case e.ham != nil:
		return e.route(CodeHam, e.ham, "whitelist")

	case e.spam != nil:
		return e.moveTo(e.set.SpamFolder, MarkReadAndMove, CodeSpam, e.spam, "blacklist")

	case !e.flags.Has(SawFrom):
		return e.moveTo(e.set.SpamFolder, MarkReadAndMove, CodeSpam, nil, "no From")

	case !e.flags.Has(SawDate):
		return e.moveTo(e.set.SpamFolder, MarkReadAndMove, CodeSpam, nil, "no Date")

	case e.flags.Has(FromSelf):
		return e.moveTo(e.set.SpamFolder, MarkReadAndMove, CodeSpam, nil, "forged self address")

	case e.flags.Has(Attachment):
		if e.set.DropFolder == "" {
			return Verdict{Action: Delete, Code: CodeDropped, Flags: e.flags, Reason: "attachment"}
		}
		return e.moveTo(e.set.DropFolder, MarkReadAndMove, CodeDropped, nil, "attachment")

	default:
		return e.route(CodeDefault, nil, "default")
	}
}

func (e *evaluation) moveTo(folder string, action Action, code byte, rule *rules.Rule, reason string) Verdict {
	if folder == "" {
		// nowhere to move it
		action = Keep
	}
	return Verdict{
		Action: action,
		Folder: folder,
		Rule:   rule,
		Code:   code,
		Flags:  e.flags,
		Reason: reason,
	}
}

// route applies the folder rule (if any) to a message we keep
func (e *evaluation) route(code byte, rule *rules.Rule, reason string) Verdict {
	keep := Verdict{
		Action: Keep,
		Rule:   rule,
		Code:   code,
		Flags:  e.flags,
		Reason: reason,
	}
	if e.folder == nil {
		return keep
	}
	if e.folder.StaysInInbox() {
		keep.Rule = e.folder
		keep.Reason = "folder rule"
		return keep
	}
	action := Move
	if e.folder.MarkRead() {
		action = MarkReadAndMove
	}
	return Verdict{
		Action: action,
		Folder: e.folder.Destination(),
		Rule:   e.folder,
		Code:   CodeFiltered,
		Flags:  e.flags,
		Reason: reason + " + folder rule",
	}
}

// riskyAttachment looks at the media type and the file name of a Content-Type value.
// The other parameters (like a random boundary) are ignored.
func riskyAttachment(value string) bool {
	mediaType, params, err := mime.ParseMediaType(value)
	if mediaType == "" {
		if err == nil {
			return false
		}
		// unparsable: keep the media type only
		mediaType, _, _ = strings.Cut(value, ";")
		mediaType = strings.TrimSpace(mediaType)
	}
	if riskyMediaType.MatchString(mediaType) {
		return true
	}
	return riskyFileName.MatchString(strings.TrimSpace(params["name"]))
}

func first(target **rules.Rule, rule *rules.Rule) {
	if *target == nil && rule != nil {
		*target = rule
	}
}
