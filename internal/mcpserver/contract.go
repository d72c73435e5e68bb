package mcpserver

// NoteFormatContract describes the canonical note format that LLM
// consumers should follow when creating notes.
const NoteFormatContract = `# mdn Note Format Contract

Every note stored in mdn MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED
group: topic.subtopic              # REQUIRED - hierarchical group path
---

Body text in standard Markdown.

Tag the note by writing @words anywhere in the body, e.g. @golang @idea.
` + "```" + `

## Rules

1. **YAML front matter is mandatory.** The opening ` + "`" + `---` + "`" + ` fence must be the
   very first line of the file.
2. **` + "`" + `title` + "`" + ` and ` + "`" + `group` + "`" + ` fields are required** and must be non-empty.
3. **Groups** form a hierarchy using ` + "`" + `/` + "`" + ` or ` + "`" + `.` + "`" + ` separators
   (e.g. ` + "`" + `work/projects` + "`" + `, ` + "`" + `sw.golang` + "`" + `).
4. **Tags** are ` + "`" + `@word` + "`" + ` markers in the body, case-sensitive, made of
   letters, digits and underscores. Tags inside the front matter are ignored.
5. **Images** reference files in the vault's shared assets directory by
   relative path: ` + "`" + `![description](diagram.png)` + "`" + `.
6. **Encoding** is UTF-8 with a trailing newline.
`
