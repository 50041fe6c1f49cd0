package sqlinline

// QInsertGalleryItem inserts a row or, when the task result was already
// saved, returns the existing row.
const QInsertGalleryItem = `--sql 4f159f78-e355-4997-a157-9f1f67aed227
with ins as (
    insert into gallery_items (id, owner_id, task_id, result_index, url, thumbnail_url, mime_type, type, created_at)
    values ($1::uuid, $2, nullif($3::text, ''), $4::int, $5, nullif($6::text, ''), $7, $8, $9)
    on conflict (task_id, result_index) where task_id is not null do nothing
    returning id::text, owner_id, coalesce(task_id, ''), result_index, url, coalesce(thumbnail_url, ''), mime_type, type, created_at
)
select * from ins
union all
select id::text, owner_id, coalesce(task_id, ''), result_index, url, coalesce(thumbnail_url, ''), mime_type, type, created_at
from gallery_items
where task_id = nullif($3::text, '')
  and result_index = $4::int
  and not exists (select 1 from ins)
limit 1;
`

const QListGalleryByTask = `--sql e479ed0f-c9b6-4beb-af0b-332428ff9fb7
select id::text, owner_id, coalesce(task_id, ''), result_index, url, coalesce(thumbnail_url, ''), mime_type, type, created_at
from gallery_items
where owner_id = $1
  and task_id = $2
order by result_index asc;
`

const QSelectGalleryIDsIn = `--sql 0b6f3b0e-5d2c-4f44-9a47-63c1d0a2f8e4
select id::text
from gallery_items
where id = any($1::uuid[]);
`

// QInsertReconciledGalleryItem records an object found in storage without a row.
const QInsertReconciledGalleryItem = `--sql c7d41e62-93a8-4b0f-8e1d-5a2f6b7c9e30
insert into gallery_items (id, owner_id, task_id, result_index, url, thumbnail_url, mime_type, type, created_at)
values ($1::uuid, $2, null, 0, $3, nullif($4::text, ''), $5, $6, $7)
on conflict (id) do nothing;
`
