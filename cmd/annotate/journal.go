/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"annotate/internal/storage"
)

type journalListCmd struct {
	Image string `arg:"" help:"Image whose revisions to list." type:"path"`
	Limit int    `default:"20" help:"Maximum number of entries."`
}

func (c *journalListCmd) Run(env *runEnv) error {
	j, err := storage.OpenJournal(env.ctx, filepath.Dir(c.Image))
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()
	entries, err := j.List(env.ctx, filepath.Base(c.Image), c.Limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAVED\tMARKERS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", e.ID, e.TS.Local().Format(time.DateTime), e.Markers)
	}
	return tw.Flush()
}

type journalRestoreCmd struct {
	Image  string `arg:"" help:"Image whose revision to restore." type:"path"`
	ID     int64  `help:"Entry id; the newest entry when zero."`
	Output string `short:"o" help:"Write the document here; stdout when empty." type:"path"`
}

func (c *journalRestoreCmd) Run(env *runEnv) error {
	j, err := storage.OpenJournal(env.ctx, filepath.Dir(c.Image))
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	var e storage.Entry
	if c.ID > 0 {
		if e, err = j.Get(env.ctx, c.ID); err != nil {
			return err
		}
	} else {
		var ok bool
		e, ok, err = j.Latest(env.ctx, filepath.Base(c.Image))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no journal entries for %s", filepath.Base(c.Image))
		}
	}
	doc, err := e.Document()
	if err != nil {
		return err
	}
	if c.Output == "" {
		data, err := doc.Marshal()
		if err != nil {
			return err
		}
		_, err = env.out.Write(data)
		return err
	}
	if err := storage.SaveFile(c.Output, doc); err != nil {
		return err
	}
	_, err = fmt.Fprintf(env.out, "restored entry %d to %s\n", e.ID, c.Output)
	return err
}
