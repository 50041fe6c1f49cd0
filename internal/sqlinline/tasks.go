package sqlinline

const QInsertGenerationTask = `--sql dabaed5f-2b7c-43b7-b856-2f6cd33107e8
insert into generation_tasks (
    task_id, owner_id, kind, template_id, requested_model, effective_model,
    status, progress, created_at, updated_at
)
values ($1, $2, $3, nullif($4::text, ''), $5, $6, $7, $8::int, $9, $9)
on conflict (task_id) do nothing;
`

const QSelectGenerationTask = `--sql e5552686-d9b3-41a2-aa73-4fa8e158abe0
select
    task_id,
    owner_id,
    kind,
    coalesce(template_id, ''),
    requested_model,
    effective_model,
    status,
    progress,
    coalesce(result_urls, '{}'::text[]),
    coalesce(error, ''),
    coalesce(gallery_item_ids, '{}'::text[]),
    created_at,
    updated_at,
    persisted_at,
    timed_out_at is not null
from generation_tasks
where task_id = $1
  and owner_id = $2
limit 1;
`

const QUpdateGenerationTaskProgress = `--sql 27112d0e-b996-4b10-b74c-e0957ccd81c8
update generation_tasks
set progress = greatest(progress, $2::int),
    updated_at = now()
where task_id = $1
  and status = 'processing';
`

// QClaimGenerationTaskPersist succeeds for exactly one caller per task.
const QClaimGenerationTaskPersist = `--sql 7abc0e69-ed9e-4683-bb57-42db584364a4
update generation_tasks
set persisted_at = now(),
    updated_at = now()
where task_id = $1
  and persisted_at is null
returning task_id;
`

const QMarkGenerationTaskTerminal = `--sql 95d87b40-1d35-424f-8775-c2595f0eaed7
update generation_tasks
set status = $2,
    progress = greatest(progress, $3::int),
    result_urls = $4::text[],
    error = nullif($5::text, ''),
    gallery_item_ids = $6::text[],
    timed_out_at = null,
    updated_at = now()
where task_id = $1;
`

// QMarkGenerationTaskTimedOut leaves the task processing so a later status read can pick it up again.
const QMarkGenerationTaskTimedOut = `--sql 3f0c8e21-6a4d-4b9e-9d57-c1e2a8b40f63
update generation_tasks
set timed_out_at = now(),
    error = nullif($2::text, ''),
    updated_at = now()
where task_id = $1
  and status = 'processing';
`

// QClaimGenerationTaskRepoll succeeds for exactly one caller per timeout.
const QClaimGenerationTaskRepoll = `--sql b86d1f4a-0e37-4c25-a9f8-5d7e3c9b2a14
update generation_tasks
set timed_out_at = null,
    error = null,
    updated_at = now()
where task_id = $1
  and status = 'processing'
  and timed_out_at is not null
returning task_id;
`
